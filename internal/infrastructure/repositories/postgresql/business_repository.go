package postgresql

import (
	"context"
	"fmt"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

type BusinessRepository struct {
	db *database.DB
}

func NewBusinessRepository(db *database.DB) repositories.BusinessRepository {
	return &BusinessRepository{db: db}
}

func (r *BusinessRepository) Create(ctx context.Context, business *models.Business) error {
	if err := r.db.WithContext(ctx).Create(business).Error; err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

func (r *BusinessRepository) GetByID(ctx context.Context, id uint) (*models.Business, error) {
	var business models.Business
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&business).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &business, nil
}

func (r *BusinessRepository) GetConfigs(ctx context.Context, businessID uint, key string) ([]models.BusinessConfig, error) {
	var configs []models.BusinessConfig
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND key = ?", businessID, key).
		Order("id ASC").
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get business configs: %w", err)
	}
	return configs, nil
}

func (r *BusinessRepository) AddConfig(ctx context.Context, config *models.BusinessConfig) error {
	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		return fmt.Errorf("failed to add business config: %w", err)
	}
	return nil
}
