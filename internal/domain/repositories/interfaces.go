package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

// ErrNotFound is returned by lookups when no row matches. Callers map it
// to their own taxonomy (HTTP 404, task retry, ...).
var ErrNotFound = errors.New("record not found")

// Store aggregates every repository plus transaction scoping. WithTx runs
// fn against a store bound to a single database transaction; any error
// returned by fn rolls the whole transaction back.
type Store interface {
	Businesses() BusinessRepository
	Users() UserRepository
	Documents() DocumentRepository
	Fields() FieldRepository
	Files() FileRepository
	Usages() UsageRepository
	AccessURIs() AccessURIRepository
	RenderedPages() RenderedPageRepository

	WithTx(ctx context.Context, fn func(Store) error) error
	HealthCheck(ctx context.Context) error
}

type BusinessRepository interface {
	Create(ctx context.Context, business *models.Business) error
	GetByID(ctx context.Context, id uint) (*models.Business, error)
	// GetConfigs returns every config row for the business with the given
	// key. "webhook" rows may repeat; "email-template" is at most one.
	GetConfigs(ctx context.Context, businessID uint, key string) ([]models.BusinessConfig, error)
	AddConfig(ctx context.Context, config *models.BusinessConfig) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

type DocumentRepository interface {
	Create(ctx context.Context, document *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	IsOwner(ctx context.Context, docID, userID uuid.UUID) (bool, error)
	// DeleteCascade removes the document together with its fields, usage
	// rows, rendered pages and access URIs in one transaction, and
	// returns the distinct blob names referenced by the deleted rows.
	DeleteCascade(ctx context.Context, docID uuid.UUID) ([]string, error)
}

type FieldRepository interface {
	Create(ctx context.Context, field *models.Field) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Field, error)
	// GetOwnedByUser resolves a field only when it is assigned to the
	// given user; ErrNotFound otherwise.
	GetOwnedByUser(ctx context.Context, fieldID, userID uuid.UUID) (*models.Field, error)
	Children(ctx context.Context, parentID uuid.UUID) ([]models.Field, error)
	ListByDocument(ctx context.Context, docID uuid.UUID) ([]models.Field, error)
	UserHasFieldOnDocument(ctx context.Context, docID, userID uuid.UUID) (bool, error)
	// Signers returns the distinct users holding a field on the document.
	Signers(ctx context.Context, docID uuid.UUID) ([]models.User, error)
	// UnfilledSigners returns the distinct users still holding at least
	// one field whose newest usage row is not filled.
	UnfilledSigners(ctx context.Context, docID uuid.UUID) ([]models.User, error)
}

type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
}

// FieldStatus is the newest usage row per field assigned to a user,
// joined with the owning document's title.
type FieldStatus struct {
	FieldID    uuid.UUID
	DocumentID uuid.UUID
	Status     models.FieldUsageType
	Title      string
	Timestamp  time.Time
}

// UsageRepository is the read/append surface of the event log. Usage rows
// are only ever inserted; current state is a projection over newest rows.
type UsageRepository interface {
	AddFileUsage(ctx context.Context, usage *models.FileUsage) error
	AddFieldUsage(ctx context.Context, usage *models.FieldUsage) error
	GetFileUsage(ctx context.Context, id uint) (*models.FileUsage, error)
	GetFieldUsage(ctx context.Context, id uint) (*models.FieldUsage, error)

	// LatestDocumentFile is the newest file-bearing usage row of any
	// type: the revision served to viewers and the page renderer.
	LatestDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error)
	// SourceDocumentFile is the newest created or updated revision: the
	// unstamped source handed to the stamper.
	SourceDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error)
	// OriginalDocumentFile is the oldest file-bearing usage row: the
	// upload as it arrived, which is what the field locator measures.
	OriginalDocumentFile(ctx context.Context, docID uuid.UUID) (*models.File, error)
	// DescribeFields returns the geometry payload stored by the field
	// locator task, ErrNotFound while no such row exists yet.
	DescribeFields(ctx context.Context, docID uuid.UUID) (models.JSONB, error)

	FilledFieldIDs(ctx context.Context, docID uuid.UUID) ([]uuid.UUID, error)
	// HasUnfilledUserFields reports whether any user-assigned field on
	// the document still lacks a filled row.
	HasUnfilledUserFields(ctx context.Context, docID uuid.UUID) (bool, error)
	// LatestFilledUsages returns the newest filled row per field with the
	// Field association populated. Fields never filled are absent.
	LatestFilledUsages(ctx context.Context, docID uuid.UUID) ([]models.FieldUsage, error)
	// UnfilledFieldNames lists the names of fields without a filled row.
	UnfilledFieldNames(ctx context.Context, docID uuid.UUID) ([]string, error)

	// FileUsageTrail is ascending by timestamp and excludes the
	// describe-fields bookkeeping rows.
	FileUsageTrail(ctx context.Context, docID uuid.UUID) ([]models.FileUsage, error)
	// FieldUsageTrail is ascending by timestamp with Field and its User
	// populated.
	FieldUsageTrail(ctx context.Context, docID uuid.UUID) ([]models.FieldUsage, error)

	// UserFieldStatuses returns one entry per field assigned to the user,
	// the newest usage row winning.
	UserFieldStatuses(ctx context.Context, userID uuid.UUID) ([]FieldStatus, error)
}

type AccessURIRepository interface {
	Create(ctx context.Context, accessURI *models.AccessURI) error
	GetByURI(ctx context.Context, uri string) (*models.AccessURI, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type RenderedPageRepository interface {
	Create(ctx context.Context, page *models.RenderedPage) error
	// LatestForPage returns the newest rendered page row for
	// (document, page) with the File association populated.
	LatestForPage(ctx context.Context, docID uuid.UUID, page int) (*models.RenderedPage, error)
}
