package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quillsign/quillsign/internal/domain/services"
)

// Client talks to the three PDF collaborators: the stamping service
// (which also extracts and concatenates), the field locator, and the
// audit-log renderer.
type Client struct {
	stamper  *resty.Client
	locator  *resty.Client
	renderer *resty.Client
}

type Config struct {
	ServiceURL     string
	LocatorURL     string
	RendererURL    string
	RequestTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(cfg.RequestTimeout)
	}

	return &Client{
		stamper:  newClient(cfg.ServiceURL),
		locator:  newClient(cfg.LocatorURL),
		renderer: newClient(cfg.RendererURL),
	}
}

// ExtractFields returns the form's field names mapped to their template
// values, both trimmed.
func (c *Client) ExtractFields(ctx context.Context, pdf []byte) (map[string]string, error) {
	resp, err := c.stamper.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/pdf").
		SetBody(pdf).
		Post("/fields")
	if err != nil {
		return nil, fmt.Errorf("field extraction request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("field extraction failed: %s", resp.String())
	}

	var raw map[string]string
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode extracted fields: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fields, nil
}

// LocateFields returns per-field page geometry keyed by field name.
func (c *Client) LocateFields(ctx context.Context, pdf []byte) (map[string]interface{}, error) {
	resp, err := c.locator.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/pdf").
		SetBody(pdf).
		Post("/locate-fields")
	if err != nil {
		return nil, fmt.Errorf("field locator request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("field locator failed: %s", resp.String())
	}

	var geometry map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &geometry); err != nil {
		return nil, fmt.Errorf("failed to decode field geometry: %w", err)
	}
	return geometry, nil
}

// stampDescriptor is the per-field entry of the "fields" multipart
// part. For image stamps Value names the multipart part carrying the
// PNG; a nil Value means the field is left blank.
type stampDescriptor struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type"`
}

// Stamp flattens the given fields into the PDF and returns the result.
func (c *Client) Stamp(ctx context.Context, pdf []byte, stamps []services.FieldStamp) ([]byte, error) {
	descriptors := make(map[string]stampDescriptor, len(stamps))

	req := c.stamper.R().
		SetContext(ctx).
		SetFileReader("file", "file", bytes.NewReader(pdf))

	for _, stamp := range stamps {
		switch stamp.Type {
		case "image":
			descriptors[stamp.Name] = stampDescriptor{Value: stamp.Value, Type: "image"}
			req.SetFileReader(stamp.Value, stamp.Value, bytes.NewReader(stamp.Image))
		case "text":
			descriptors[stamp.Name] = stampDescriptor{Value: stamp.Value, Type: "text"}
		default:
			descriptors[stamp.Name] = stampDescriptor{Value: nil, Type: "blank"}
		}
	}

	raw, err := json.Marshal(descriptors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stamp descriptors: %w", err)
	}
	req.SetMultipartField("fields", "", "application/json", bytes.NewReader(raw))

	resp, err := req.Post("/stamp")
	if err != nil {
		return nil, fmt.Errorf("stamp request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("stamp failed: %s", resp.String())
	}
	return resp.Body(), nil
}

// Concat merges the given PDFs in order.
func (c *Client) Concat(ctx context.Context, pdfs [][]byte) ([]byte, error) {
	req := c.stamper.R().SetContext(ctx)
	for i, content := range pdfs {
		name := fmt.Sprintf("pdf-%d", i)
		req.SetFileReader(name, name, bytes.NewReader(content))
	}

	resp, err := req.Post("/concat")
	if err != nil {
		return nil, fmt.Errorf("concat request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("concat failed: %s", resp.String())
	}
	return resp.Body(), nil
}

// RenderAuditLog renders the audit trail entries into a printable PDF.
func (c *Client) RenderAuditLog(ctx context.Context, audit interface{}) ([]byte, error) {
	resp, err := c.renderer.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(audit).
		Post("/")
	if err != nil {
		return nil, fmt.Errorf("audit render request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("audit render failed: %s", resp.String())
	}
	return resp.Body(), nil
}
