package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	supabase "github.com/nedpals/supabase-go"

	"github.com/quillsign/quillsign/internal/domain/services"
)

// StorageService stores document blobs in a Supabase storage bucket.
// Blob names are flat opaque keys, there is no directory hierarchy.
type StorageService struct {
	client     *supabase.Client
	bucketName string
}

type Config struct {
	URL    string
	APIKey string
	Bucket string
}

func NewStorageService(config Config) (*StorageService, error) {
	client := supabase.CreateClient(config.URL, config.APIKey)
	if client == nil {
		return nil, fmt.Errorf("failed to create Supabase client")
	}

	return &StorageService{
		client:     client,
		bucketName: config.Bucket,
	}, nil
}

func (s *StorageService) Upload(ctx context.Context, name string, content []byte, contentType string) error {
	fileOptions := &supabase.FileUploadOptions{
		ContentType: contentType,
		Upsert:      false,
	}

	response := s.client.Storage.From(s.bucketName).Upload(name, bytes.NewReader(content), fileOptions)
	if response.Key == "" {
		return fmt.Errorf("failed to upload blob %s: %s", name, response.Message)
	}

	return nil
}

func (s *StorageService) Download(ctx context.Context, name string) ([]byte, error) {
	content, err := s.client.Storage.From(s.bucketName).Download(name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, services.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to download blob %s: %w", name, err)
	}

	return content, nil
}

func (s *StorageService) Delete(ctx context.Context, name string) error {
	response := s.client.Storage.From(s.bucketName).Remove([]string{name})
	if response.Key == "" && response.Message != "" {
		if strings.Contains(strings.ToLower(response.Message), "not found") {
			return nil
		}
		return fmt.Errorf("failed to delete blob %s: %s", name, response.Message)
	}

	return nil
}

func (s *StorageService) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	signedURL := s.client.Storage.From(s.bucketName).CreateSignedUrl(name, int(expiry.Seconds()))
	if signedURL.SignedUrl == "" {
		return "", fmt.Errorf("failed to create signed url for blob %s", name)
	}

	return signedURL.SignedUrl, nil
}
