package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

type AccessURIRepository struct {
	db *database.DB
}

func NewAccessURIRepository(db *database.DB) repositories.AccessURIRepository {
	return &AccessURIRepository{db: db}
}

func (r *AccessURIRepository) Create(ctx context.Context, accessURI *models.AccessURI) error {
	if err := r.db.WithContext(ctx).Create(accessURI).Error; err != nil {
		return fmt.Errorf("failed to create access uri: %w", err)
	}
	return nil
}

func (r *AccessURIRepository) GetByURI(ctx context.Context, uri string) (*models.AccessURI, error) {
	var accessURI models.AccessURI
	err := r.db.WithContext(ctx).Where("uri = ?", uri).First(&accessURI).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &accessURI, nil
}

// RevokeAllForUser revokes every access URI issued to the user.
// Revocation is permanent; rows are kept for the audit trail.
func (r *AccessURIRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&models.AccessURI{}).
		Where("user_id = ?", userID).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("failed to revoke access uris: %w", err)
	}
	return nil
}
