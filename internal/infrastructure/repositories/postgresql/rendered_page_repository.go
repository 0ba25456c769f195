package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

type RenderedPageRepository struct {
	db *database.DB
}

func NewRenderedPageRepository(db *database.DB) repositories.RenderedPageRepository {
	return &RenderedPageRepository{db: db}
}

func (r *RenderedPageRepository) Create(ctx context.Context, page *models.RenderedPage) error {
	if err := r.db.WithContext(ctx).Create(page).Error; err != nil {
		return fmt.Errorf("failed to create rendered page: %w", err)
	}
	return nil
}

func (r *RenderedPageRepository) LatestForPage(ctx context.Context, docID uuid.UUID, page int) (*models.RenderedPage, error) {
	var rendered models.RenderedPage
	err := r.db.WithContext(ctx).Preload("File").
		Where("document_id = ? AND page = ?", docID, page).
		Order("id DESC").
		First(&rendered).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rendered, nil
}
