package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quillsign/quillsign/internal/domain/services"
)

// StorageService keeps blobs as flat files under a base directory. Used
// for development and tests; production uses the Supabase bucket.
type StorageService struct {
	basePath string
}

func NewStorageService(basePath string) (*StorageService, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &StorageService{basePath: basePath}, nil
}

func (s *StorageService) Upload(ctx context.Context, name string, content []byte, contentType string) error {
	if err := os.WriteFile(filepath.Join(s.basePath, name), content, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	return nil
}

func (s *StorageService) Download(ctx context.Context, name string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.basePath, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return content, nil
}

func (s *StorageService) Delete(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(s.basePath, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (s *StorageService) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	// Local blobs are served straight by the API, there is nothing to sign.
	return fmt.Sprintf("/api/v1/blobs/%s", name), nil
}
