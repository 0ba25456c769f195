package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

// AuditEntry is one normalized event in a document's audit trail.
type AuditEntry struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// AuditService assembles the audit trail of a document from its usage
// rows and renders it to JSON or a printable PDF.
type AuditService struct {
	store    repositories.Store
	renderer AuditRenderer
	logger   *logger.Logger
}

func NewAuditService(store repositories.Store, renderer AuditRenderer, log *logger.Logger) *AuditService {
	return &AuditService{store: store, renderer: renderer, logger: log}
}

// Trail returns the document's audit entries newest first.
func (s *AuditService) Trail(ctx context.Context, scope Scope, docID uuid.UUID) ([]AuditEntry, error) {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, true); err != nil {
		return nil, err
	}
	return s.DocumentTrail(ctx, docID)
}

// RenderPDF returns the audit trail as a printable PDF.
func (s *AuditService) RenderPDF(ctx context.Context, scope Scope, docID uuid.UUID) ([]byte, error) {
	entries, err := s.Trail(ctx, scope, docID)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.RenderAuditLog(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to render audit log: %w", err)
	}
	return pdf, nil
}

// DocumentTrail merges the file and field trails, both ascending, and
// returns the combined entries reversed to newest first. No permission
// check; task bodies use this directly.
func (s *AuditService) DocumentTrail(ctx context.Context, docID uuid.UUID) ([]AuditEntry, error) {
	fileRows, err := s.store.Usages().FileUsageTrail(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file trail: %w", err)
	}
	fieldRows, err := s.store.Usages().FieldUsageTrail(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load field trail: %w", err)
	}

	entries := make([]AuditEntry, 0, len(fileRows)+len(fieldRows))
	i, j := 0, 0
	for i < len(fileRows) || j < len(fieldRows) {
		// Dependent fields carry no user and do not show up in the
		// trail; their effect is visible through the stamped document.
		if j < len(fieldRows) && fieldRows[j].Field.UserID == nil {
			j++
			continue
		}
		if j >= len(fieldRows) || (i < len(fileRows) && !fileRows[i].Timestamp.After(fieldRows[j].Timestamp)) {
			entries = append(entries, fileEntry(fileRows[i]))
			i++
		} else {
			entries = append(entries, fieldEntry(fieldRows[j]))
			j++
		}
	}

	// Newest first on the wire.
	for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
		entries[l], entries[r] = entries[r], entries[l]
	}
	return entries, nil
}

func fileEntry(row models.FileUsage) AuditEntry {
	status := string(row.UsageType)
	if row.UsageType == models.FileUsageEndStamp {
		if row.FileID == nil {
			status = "stamp_failed"
		} else {
			status = "stamp_success"
		}
	}
	return AuditEntry{
		Status:    status,
		Timestamp: row.Timestamp.UTC().Format(time.RFC3339),
		Data:      copyData(row.Data),
	}
}

func fieldEntry(row models.FieldUsage) AuditEntry {
	data := copyData(row.Data)
	if row.Field.User != nil {
		data["user"] = row.Field.User.Username
	}
	return AuditEntry{
		Status:    string(row.UsageType),
		Timestamp: row.Timestamp.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

func copyData(data models.JSONB) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
