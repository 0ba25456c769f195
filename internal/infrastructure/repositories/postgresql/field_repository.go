package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

type FieldRepository struct {
	db *database.DB
}

func NewFieldRepository(db *database.DB) repositories.FieldRepository {
	return &FieldRepository{db: db}
}

func (r *FieldRepository) Create(ctx context.Context, field *models.Field) error {
	if err := r.db.WithContext(ctx).Create(field).Error; err != nil {
		return fmt.Errorf("failed to create field: %w", err)
	}
	return nil
}

func (r *FieldRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Field, error) {
	var field models.Field
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&field).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &field, nil
}

func (r *FieldRepository) GetOwnedByUser(ctx context.Context, fieldID, userID uuid.UUID) (*models.Field, error) {
	var field models.Field
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", fieldID, userID).
		First(&field).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &field, nil
}

func (r *FieldRepository) Children(ctx context.Context, parentID uuid.UUID) ([]models.Field, error) {
	var fields []models.Field
	err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Find(&fields).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list child fields: %w", err)
	}
	return fields, nil
}

func (r *FieldRepository) ListByDocument(ctx context.Context, docID uuid.UUID) ([]models.Field, error) {
	var fields []models.Field
	err := r.db.WithContext(ctx).Where("document_id = ?", docID).Find(&fields).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	return fields, nil
}

func (r *FieldRepository) UserHasFieldOnDocument(ctx context.Context, docID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Field{}).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check field assignment: %w", err)
	}
	return count > 0, nil
}

func (r *FieldRepository) Signers(ctx context.Context, docID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Distinct("users.*").
		Joins("JOIN fields ON fields.user_id = users.id").
		Where("fields.document_id = ?", docID).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list signers: %w", err)
	}
	return users, nil
}

func (r *FieldRepository) UnfilledSigners(ctx context.Context, docID uuid.UUID) ([]models.User, error) {
	filled := r.db.Model(&models.FieldUsage{}).
		Select("field_id").
		Where("usage_type = ?", models.FieldUsageFilled)

	var users []models.User
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Distinct("users.*").
		Joins("JOIN fields ON fields.user_id = users.id").
		Where("fields.document_id = ? AND fields.id NOT IN (?)", docID, filled).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfilled signers: %w", err)
	}
	return users, nil
}
