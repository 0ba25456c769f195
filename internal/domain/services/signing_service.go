package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

// SigningService implements field filling: signature images, text
// values and the bulk variant. Every fill appends usage rows, cascades
// to dependent date fields and re-stamps the document.
type SigningService struct {
	store    repositories.Store
	blobs    BlobStore
	queue    TaskQueue
	timezone *time.Location
	logger   *logger.Logger
}

func NewSigningService(
	store repositories.Store,
	blobs BlobStore,
	queue TaskQueue,
	timezone *time.Location,
	log *logger.Logger,
) *SigningService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &SigningService{
		store:    store,
		blobs:    blobs,
		queue:    queue,
		timezone: timezone,
		logger:   log,
	}
}

// fillResult carries the row ids written by one fill transaction so the
// webhooks fire only after commit.
type fillResult struct {
	docID          uuid.UUID
	fieldUsageIDs  []uint
	allFilledUsage *uint
}

// FillSignature records a signature image for the field. The field must
// be assigned to the caller and admitted by the token's document scope.
func (s *SigningService) FillSignature(ctx context.Context, scope Scope, fieldID uuid.UUID, image []byte, clientIP string) error {
	field, err := s.resolveField(ctx, scope, fieldID)
	if err != nil {
		return err
	}

	result := &fillResult{docID: field.DocumentID}
	err = s.store.WithTx(ctx, func(tx repositories.Store) error {
		if err := s.fillSignature(ctx, tx, field, image, clientIP, result); err != nil {
			return err
		}
		return s.checkComplete(ctx, tx, result)
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, result)
	return nil
}

// FillText records a text value for the field.
func (s *SigningService) FillText(ctx context.Context, scope Scope, fieldID uuid.UUID, value, clientIP string) error {
	field, err := s.resolveField(ctx, scope, fieldID)
	if err != nil {
		return err
	}

	result := &fillResult{docID: field.DocumentID}
	err = s.store.WithTx(ctx, func(tx repositories.Store) error {
		if err := s.fillText(ctx, tx, field, value, clientIP, result); err != nil {
			return err
		}
		return s.checkComplete(ctx, tx, result)
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, result)
	return nil
}

// BulkFillEntry is one field of a bulk fill: exactly one of Image and
// Value is set.
type BulkFillEntry struct {
	FieldID uuid.UUID
	Image   []byte
	Value   string
}

// BulkFill applies several fills in one transaction. All entries must
// resolve to fields assigned to the caller on documents the scope
// admits; one failing entry rolls back the lot. A single re-stamp is
// scheduled at the end.
func (s *SigningService) BulkFill(ctx context.Context, scope Scope, entries []BulkFillEntry, clientIP string) error {
	if len(entries) == 0 {
		return NewValidationError("No fields provided", "")
	}

	fields := make([]*models.Field, len(entries))
	for i, entry := range entries {
		field, err := s.resolveField(ctx, scope, entry.FieldID)
		if err != nil {
			return err
		}
		if i > 0 && field.DocumentID != fields[0].DocumentID {
			return NewValidationError("All fields must belong to the same document", "")
		}
		fields[i] = field
	}

	result := &fillResult{docID: fields[0].DocumentID}
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		for i, entry := range entries {
			if entry.Image != nil {
				if err := s.fillSignature(ctx, tx, fields[i], entry.Image, clientIP, result); err != nil {
					return err
				}
			} else {
				if err := s.fillText(ctx, tx, fields[i], entry.Value, clientIP, result); err != nil {
					return err
				}
			}
		}
		return s.checkComplete(ctx, tx, result)
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, result)
	return nil
}

// resolveField loads the field, enforcing assignment to the caller and
// the token's document scope.
func (s *SigningService) resolveField(ctx context.Context, scope Scope, fieldID uuid.UUID) (*models.Field, error) {
	field, err := s.store.Fields().GetOwnedByUser(ctx, fieldID, scope.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up field: %w", err)
	}
	if !scope.Admits(field.DocumentID) {
		return nil, ErrUnauthorized
	}
	return field, nil
}

func (s *SigningService) fillSignature(ctx context.Context, tx repositories.Store, field *models.Field, image []byte, clientIP string, result *fillResult) error {
	fileID := uuid.New()
	file := &models.File{ID: fileID, Filename: models.CompactID(fileID)}
	if err := tx.Files().Create(ctx, file); err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	usage := &models.FieldUsage{
		FieldID:   field.ID,
		FileID:    &fileID,
		UsageType: models.FieldUsageFilled,
		Data:      models.JSONB{"ip": clientIP},
	}
	if err := tx.Usages().AddFieldUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}
	result.fieldUsageIDs = append(result.fieldUsageIDs, usage.ID)

	if err := s.blobs.Upload(ctx, file.Filename, image, "image/png"); err != nil {
		return fmt.Errorf("failed to upload signature: %w", err)
	}

	return s.cascadeDependents(ctx, tx, field, result)
}

func (s *SigningService) fillText(ctx context.Context, tx repositories.Store, field *models.Field, value, clientIP string, result *fillResult) error {
	usage := &models.FieldUsage{
		FieldID:   field.ID,
		UsageType: models.FieldUsageFilled,
		Data:      models.JSONB{"value": value, "ip": clientIP},
	}
	if err := tx.Usages().AddFieldUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}
	result.fieldUsageIDs = append(result.fieldUsageIDs, usage.ID)

	return s.cascadeDependents(ctx, tx, field, result)
}

// cascadeDependents stamps every dependent child field with the current
// date. Dependents are created as date fields; anything else is a
// broken invariant.
func (s *SigningService) cascadeDependents(ctx context.Context, tx repositories.Store, field *models.Field, result *fillResult) error {
	children, err := tx.Fields().Children(ctx, field.ID)
	if err != nil {
		return fmt.Errorf("failed to list dependent fields: %w", err)
	}

	today := time.Now().In(s.timezone).Format("2006-01-02")
	for _, child := range children {
		if child.Type != models.FieldTypeDate {
			return fmt.Errorf("dependent field %s has type %s, expected date",
				models.CompactID(child.ID), child.Type)
		}
		usage := &models.FieldUsage{
			FieldID:   child.ID,
			UsageType: models.FieldUsageFilled,
			Data:      models.JSONB{"value": today},
		}
		if err := tx.Usages().AddFieldUsage(ctx, usage); err != nil {
			return fmt.Errorf("failed to fill dependent field: %w", err)
		}
		result.fieldUsageIDs = append(result.fieldUsageIDs, usage.ID)
	}
	return nil
}

// checkComplete appends the all-fields-filled marker when no assigned
// field is left unfilled. Concurrent fills may duplicate the marker;
// consumers dedupe by row id.
func (s *SigningService) checkComplete(ctx context.Context, tx repositories.Store, result *fillResult) error {
	unfilled, err := tx.Usages().HasUnfilledUserFields(ctx, result.docID)
	if err != nil {
		return fmt.Errorf("failed to check completeness: %w", err)
	}
	if unfilled {
		return nil
	}

	usage := &models.FileUsage{
		DocumentID: result.docID,
		UsageType:  models.FileUsageAllFieldsFilled,
	}
	if err := tx.Usages().AddFileUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	result.allFilledUsage = &usage.ID
	return nil
}

// dispatch enqueues the webhooks for the committed rows plus one
// re-stamp of the document.
func (s *SigningService) dispatch(ctx context.Context, result *fillResult) {
	for _, id := range result.fieldUsageIDs {
		s.enqueue(ctx, TaskWebhooksFieldUsage, UsageTaskArgs{UsageID: id})
	}
	if result.allFilledUsage != nil {
		s.enqueue(ctx, TaskWebhooksFileUsage, UsageTaskArgs{UsageID: *result.allFilledUsage})
	}
	s.enqueue(ctx, TaskStampPDF, DocumentTaskArgs{DocID: result.docID})
}

func (s *SigningService) enqueue(ctx context.Context, name string, args interface{}) {
	if err := s.queue.Enqueue(ctx, name, args); err != nil {
		s.logger.Error("failed to enqueue task", "task", name, "error", err)
	}
}
