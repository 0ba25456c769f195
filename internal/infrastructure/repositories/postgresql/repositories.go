package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
)

// Repositories bundles every repository over one gorm connection and
// implements repositories.Store.
type Repositories struct {
	businesses    repositories.BusinessRepository
	users         repositories.UserRepository
	documents     repositories.DocumentRepository
	fields        repositories.FieldRepository
	files         repositories.FileRepository
	usages        repositories.UsageRepository
	accessURIs    repositories.AccessURIRepository
	renderedPages repositories.RenderedPageRepository

	db *database.DB
}

// NewRepositories creates a repositories container bound to db.
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		businesses:    NewBusinessRepository(db),
		users:         NewUserRepository(db),
		documents:     NewDocumentRepository(db),
		fields:        NewFieldRepository(db),
		files:         NewFileRepository(db),
		usages:        NewUsageRepository(db),
		accessURIs:    NewAccessURIRepository(db),
		renderedPages: NewRenderedPageRepository(db),
		db:            db,
	}
}

func (r *Repositories) Businesses() repositories.BusinessRepository       { return r.businesses }
func (r *Repositories) Users() repositories.UserRepository                { return r.users }
func (r *Repositories) Documents() repositories.DocumentRepository        { return r.documents }
func (r *Repositories) Fields() repositories.FieldRepository              { return r.fields }
func (r *Repositories) Files() repositories.FileRepository                { return r.files }
func (r *Repositories) Usages() repositories.UsageRepository              { return r.usages }
func (r *Repositories) AccessURIs() repositories.AccessURIRepository      { return r.accessURIs }
func (r *Repositories) RenderedPages() repositories.RenderedPageRepository {
	return r.renderedPages
}

// WithTx runs fn against a store bound to a single transaction.
func (r *Repositories) WithTx(ctx context.Context, fn func(repositories.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(&database.DB{DB: tx}))
	})
}

// HealthCheck verifies database connectivity
func (r *Repositories) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// notFound maps gorm's sentinel onto the repository-level one.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return err
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
