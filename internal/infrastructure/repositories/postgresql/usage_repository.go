package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

// UsageRepository reads and appends the event log. Projections order by
// (timestamp, id) so rows written in the same clock tick still resolve
// deterministically.
type UsageRepository struct {
	db *database.DB
}

func NewUsageRepository(db *database.DB) repositories.UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) AddFileUsage(ctx context.Context, usage *models.FileUsage) error {
	if err := r.db.WithContext(ctx).Create(usage).Error; err != nil {
		return fmt.Errorf("failed to add file usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) AddFieldUsage(ctx context.Context, usage *models.FieldUsage) error {
	if err := r.db.WithContext(ctx).Create(usage).Error; err != nil {
		return fmt.Errorf("failed to add field usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) GetFileUsage(ctx context.Context, id uint) (*models.FileUsage, error) {
	var usage models.FileUsage
	err := r.db.WithContext(ctx).Preload("File").Where("id = ?", id).First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &usage, nil
}

func (r *UsageRepository) GetFieldUsage(ctx context.Context, id uint) (*models.FieldUsage, error) {
	var usage models.FieldUsage
	err := r.db.WithContext(ctx).Preload("Field").Where("id = ?", id).First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &usage, nil
}

func (r *UsageRepository) LatestDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error) {
	var usage models.FileUsage
	err := r.db.WithContext(ctx).Preload("File").
		Where("document_id = ? AND file_id IS NOT NULL", docID).
		Order("timestamp DESC, id DESC").
		First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return usage.File, nil
}

func (r *UsageRepository) SourceDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error) {
	var usage models.FileUsage
	err := r.db.WithContext(ctx).Preload("File").
		Where("document_id = ? AND file_id IS NOT NULL AND usage_type IN ?",
			docID, []models.FileUsageType{models.FileUsageCreated, models.FileUsageUpdated}).
		Order("timestamp DESC, id DESC").
		First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return usage.File, nil
}

func (r *UsageRepository) OriginalDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error) {
	var usage models.FileUsage
	err := r.db.WithContext(ctx).Preload("File").
		Where("document_id = ? AND file_id IS NOT NULL", docID).
		Order("timestamp ASC, id ASC").
		First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return usage.File, nil
}

func (r *UsageRepository) DescribeFields(ctx context.Context, docID uuid.UUID) (models.JSONB, error) {
	var usage models.FileUsage
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND usage_type = ?", docID, models.FileUsageDescribeFields).
		Order("timestamp ASC, id ASC").
		First(&usage).Error
	if err != nil {
		return nil, notFound(err)
	}
	return usage.Data, nil
}

func (r *UsageRepository) FilledFieldIDs(ctx context.Context, docID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.FieldUsage{}).
		Joins("JOIN fields ON fields.id = field_usages.field_id").
		Where("fields.document_id = ? AND field_usages.usage_type = ?", docID, models.FieldUsageFilled).
		Distinct().Pluck("field_usages.field_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list filled fields: %w", err)
	}
	return ids, nil
}

func (r *UsageRepository) HasUnfilledUserFields(ctx context.Context, docID uuid.UUID) (bool, error) {
	filled := r.db.Model(&models.FieldUsage{}).
		Select("field_id").
		Where("usage_type = ?", models.FieldUsageFilled)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Field{}).
		Where("document_id = ? AND user_id IS NOT NULL AND id NOT IN (?)", docID, filled).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check unfilled fields: %w", err)
	}
	return count > 0, nil
}

func (r *UsageRepository) LatestFilledUsages(ctx context.Context, docID uuid.UUID) ([]models.FieldUsage, error) {
	var usages []models.FieldUsage
	err := r.db.WithContext(ctx).Preload("Field").
		Joins("JOIN fields ON fields.id = field_usages.field_id").
		Where("fields.document_id = ? AND field_usages.usage_type = ?", docID, models.FieldUsageFilled).
		Order("field_usages.timestamp DESC, field_usages.id DESC").
		Find(&usages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list filled usages: %w", err)
	}

	// Newest row per field wins.
	seen := make(map[uuid.UUID]struct{}, len(usages))
	latest := make([]models.FieldUsage, 0, len(usages))
	for _, u := range usages {
		if _, ok := seen[u.FieldID]; ok {
			continue
		}
		seen[u.FieldID] = struct{}{}
		latest = append(latest, u)
	}
	return latest, nil
}

func (r *UsageRepository) UnfilledFieldNames(ctx context.Context, docID uuid.UUID) ([]string, error) {
	filled := r.db.Model(&models.FieldUsage{}).
		Select("field_id").
		Where("usage_type = ?", models.FieldUsageFilled)

	var names []string
	err := r.db.WithContext(ctx).Model(&models.Field{}).
		Where("document_id = ? AND id NOT IN (?)", docID, filled).
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfilled field names: %w", err)
	}
	return names, nil
}

func (r *UsageRepository) FileUsageTrail(ctx context.Context, docID uuid.UUID) ([]models.FileUsage, error) {
	var usages []models.FileUsage
	err := r.db.WithContext(ctx).Preload("File").
		Where("document_id = ? AND usage_type <> ?", docID, models.FileUsageDescribeFields).
		Order("timestamp ASC, id ASC").
		Find(&usages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list file usage trail: %w", err)
	}
	return usages, nil
}

func (r *UsageRepository) FieldUsageTrail(ctx context.Context, docID uuid.UUID) ([]models.FieldUsage, error) {
	var usages []models.FieldUsage
	err := r.db.WithContext(ctx).
		Preload("Field").Preload("Field.User").
		Joins("JOIN fields ON fields.id = field_usages.field_id").
		Where("fields.document_id = ?", docID).
		Order("field_usages.timestamp ASC, field_usages.id ASC").
		Find(&usages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list field usage trail: %w", err)
	}
	return usages, nil
}

func (r *UsageRepository) UserFieldStatuses(ctx context.Context, userID uuid.UUID) ([]repositories.FieldStatus, error) {
	var usages []models.FieldUsage
	err := r.db.WithContext(ctx).
		Preload("Field").Preload("Field.Document").
		Joins("JOIN fields ON fields.id = field_usages.field_id").
		Where("fields.user_id = ?", userID).
		Order("field_usages.timestamp DESC, field_usages.id DESC").
		Find(&usages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user field statuses: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(usages))
	statuses := make([]repositories.FieldStatus, 0, len(usages))
	for _, u := range usages {
		if _, ok := seen[u.FieldID]; ok {
			continue
		}
		seen[u.FieldID] = struct{}{}
		statuses = append(statuses, repositories.FieldStatus{
			FieldID:    u.FieldID,
			DocumentID: u.Field.DocumentID,
			Status:     u.UsageType,
			Title:      u.Field.Document.Title,
			Timestamp:  u.Timestamp,
		})
	}
	return statuses, nil
}
