package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

type DocumentRepository struct {
	db *database.DB
}

func NewDocumentRepository(db *database.DB) repositories.DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, document *models.Document) error {
	if err := r.db.WithContext(ctx).Create(document).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var document models.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&document).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &document, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	var documents []models.Document
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&documents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return documents, nil
}

func (r *DocumentRepository) IsOwner(ctx context.Context, docID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND user_id = ?", docID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document ownership: %w", err)
	}
	return count > 0, nil
}

// DeleteCascade removes the document and all dependent rows in one
// transaction. Usage rows go first, then the rows they reference. The
// returned blob names cover every file the deleted rows pointed at, so
// the caller can queue storage cleanup.
func (r *DocumentRepository) DeleteCascade(ctx context.Context, docID uuid.UUID) ([]string, error) {
	var blobNames []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fieldIDs := tx.Model(&models.Field{}).Select("id").Where("document_id = ?", docID)

		var fileIDs []uuid.UUID
		if err := tx.Model(&models.FileUsage{}).
			Where("document_id = ? AND file_id IS NOT NULL", docID).
			Distinct().Pluck("file_id", &fileIDs).Error; err != nil {
			return fmt.Errorf("failed to collect file usage blobs: %w", err)
		}

		var fieldFileIDs []uuid.UUID
		if err := tx.Model(&models.FieldUsage{}).
			Where("field_id IN (?) AND file_id IS NOT NULL", fieldIDs).
			Distinct().Pluck("file_id", &fieldFileIDs).Error; err != nil {
			return fmt.Errorf("failed to collect field usage blobs: %w", err)
		}

		var pageFileIDs []uuid.UUID
		if err := tx.Model(&models.RenderedPage{}).
			Where("document_id = ?", docID).
			Distinct().Pluck("file_id", &pageFileIDs).Error; err != nil {
			return fmt.Errorf("failed to collect rendered page blobs: %w", err)
		}

		allFileIDs := dedupeUUIDs(append(append(fileIDs, fieldFileIDs...), pageFileIDs...))
		if len(allFileIDs) > 0 {
			if err := tx.Model(&models.File{}).
				Where("id IN ?", allFileIDs).
				Pluck("filename", &blobNames).Error; err != nil {
				return fmt.Errorf("failed to resolve blob names: %w", err)
			}
		}

		if err := tx.Where("field_id IN (?)", fieldIDs).Delete(&models.FieldUsage{}).Error; err != nil {
			return fmt.Errorf("failed to delete field usages: %w", err)
		}
		if err := tx.Where("document_id = ?", docID).Delete(&models.FileUsage{}).Error; err != nil {
			return fmt.Errorf("failed to delete file usages: %w", err)
		}
		if err := tx.Where("document_id = ?", docID).Delete(&models.RenderedPage{}).Error; err != nil {
			return fmt.Errorf("failed to delete rendered pages: %w", err)
		}
		if err := tx.Where("document_id = ?", docID).Delete(&models.AccessURI{}).Error; err != nil {
			return fmt.Errorf("failed to delete access uris: %w", err)
		}
		if err := tx.Where("document_id = ?", docID).Delete(&models.Field{}).Error; err != nil {
			return fmt.Errorf("failed to delete fields: %w", err)
		}
		if len(allFileIDs) > 0 {
			if err := tx.Where("id IN ?", allFileIDs).Delete(&models.File{}).Error; err != nil {
				return fmt.Errorf("failed to delete files: %w", err)
			}
		}

		result := tx.Where("id = ?", docID).Delete(&models.Document{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return repositories.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return blobNames, nil
}

func dedupeUUIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
