package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

// FileEventPayload is the webhook body for a document-level event.
type FileEventPayload struct {
	DocID     string       `json:"doc_id"`
	Type      string       `json:"type"`
	UsageType string       `json:"usage_type"`
	Timestamp string       `json:"timestamp"`
	Data      models.JSONB `json:"data"`
}

// FieldEventPayload is the webhook body for a field-level event. UserID
// is null for dependent fields.
type FieldEventPayload struct {
	DocID     string       `json:"doc_id"`
	FieldID   string       `json:"field_id"`
	UserID    *string      `json:"user_id"`
	Type      string       `json:"type"`
	UsageType string       `json:"usage_type"`
	Timestamp string       `json:"timestamp"`
	Data      models.JSONB `json:"data"`
}

// WebhookDispatcher posts event payloads to every webhook URL
// configured for the business owning the document. Delivery is
// best-effort: unreachable endpoints and malformed URLs are logged and
// skipped so one bad subscriber cannot block the rest.
type WebhookDispatcher struct {
	store  repositories.Store
	client *resty.Client
	logger *logger.Logger
}

func NewWebhookDispatcher(store repositories.Store, timeout time.Duration, log *logger.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		store:  store,
		client: resty.New().SetTimeout(timeout),
		logger: log,
	}
}

// DispatchFileUsage builds and delivers the payload for one FileUsage
// row. A missing row is reported as repositories.ErrNotFound so the
// task retry policy can cover the commit race.
func (d *WebhookDispatcher) DispatchFileUsage(ctx context.Context, usageID uint) error {
	usage, err := d.store.Usages().GetFileUsage(ctx, usageID)
	if err != nil {
		return fmt.Errorf("failed to load file usage %d: %w", usageID, err)
	}

	payload := FileEventPayload{
		DocID:     models.CompactID(usage.DocumentID),
		Type:      "document",
		UsageType: string(usage.UsageType),
		Timestamp: usage.Timestamp.UTC().Format(time.RFC3339),
		Data:      usage.Data,
	}
	return d.deliver(ctx, usage.DocumentID, payload)
}

// DispatchFieldUsage builds and delivers the payload for one FieldUsage
// row.
func (d *WebhookDispatcher) DispatchFieldUsage(ctx context.Context, usageID uint) error {
	usage, err := d.store.Usages().GetFieldUsage(ctx, usageID)
	if err != nil {
		return fmt.Errorf("failed to load field usage %d: %w", usageID, err)
	}
	field, err := d.store.Fields().GetByID(ctx, usage.FieldID)
	if err != nil {
		return fmt.Errorf("failed to load field: %w", err)
	}

	var userID *string
	if field.UserID != nil {
		id := models.CompactID(*field.UserID)
		userID = &id
	}

	payload := FieldEventPayload{
		DocID:     models.CompactID(field.DocumentID),
		FieldID:   models.CompactID(field.ID),
		UserID:    userID,
		Type:      "field",
		UsageType: string(usage.UsageType),
		Timestamp: usage.Timestamp.UTC().Format(time.RFC3339),
		Data:      usage.Data,
	}
	return d.deliver(ctx, field.DocumentID, payload)
}

// deliver posts the payload to every webhook URL of the document
// owner's business.
func (d *WebhookDispatcher) deliver(ctx context.Context, docID uuid.UUID, payload interface{}) error {
	urls, err := d.webhookURLs(ctx, docID)
	if err != nil {
		return err
	}

	for _, url := range urls {
		resp, err := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(url)
		if err != nil {
			d.logger.Warn("failed to post to webhook", "url", url, "error", err)
			continue
		}
		if resp.IsError() {
			d.logger.Warn("webhook returned error status",
				"url", url, "status", resp.StatusCode(), "body", string(resp.Body()))
		}
	}
	return nil
}

func (d *WebhookDispatcher) webhookURLs(ctx context.Context, docID uuid.UUID) ([]string, error) {
	doc, err := d.store.Documents().GetByID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	owner, err := d.store.Users().GetByID(ctx, doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document owner: %w", err)
	}
	configs, err := d.store.Businesses().GetConfigs(ctx, owner.BusinessID, "webhook")
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook configs: %w", err)
	}

	urls := make([]string, 0, len(configs))
	for _, cfg := range configs {
		url, ok := cfg.Values["url"].(string)
		if !ok || url == "" {
			d.logger.Warn("webhook config without url", "config_id", cfg.ID)
			continue
		}
		urls = append(urls, url)
	}
	return urls, nil
}
