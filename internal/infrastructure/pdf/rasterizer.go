package pdf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var pageLine = regexp.MustCompile(`^Page ([0-9]+)`)

// Rasterizer renders PDF pages to PNG by shelling out to ghostscript.
type Rasterizer struct {
	bin string
}

func NewRasterizer(bin string) *Rasterizer {
	if bin == "" {
		bin = "gs"
	}
	return &Rasterizer{bin: bin}
}

// RasterizePages renders each page at 300 dpi. The returned slice is in
// page order, index 0 holding page 1.
func (r *Rasterizer) RasterizePages(ctx context.Context, pdf []byte) ([][]byte, error) {
	tmpdir, err := os.MkdirTemp("", "render-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	input := filepath.Join(tmpdir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.bin,
		"-r300",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=png16m",
		fmt.Sprintf("-sOutputFile=%s", filepath.Join(tmpdir, "page-%d.png")),
		input,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ghostscript failed: %w: %s", err, output)
	}

	// Ghostscript reports each rendered page on stdout as "Page N".
	var pageNumbers []int
	for _, line := range strings.Split(string(output), "\n") {
		match := pageLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		pageNumbers = append(pageNumbers, n)
	}

	pages := make([][]byte, 0, len(pageNumbers))
	for _, n := range pageNumbers {
		content, err := os.ReadFile(filepath.Join(tmpdir, fmt.Sprintf("page-%d.png", n)))
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page %d: %w", n, err)
		}
		pages = append(pages, content)
	}
	return pages, nil
}
