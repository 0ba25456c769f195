package services

import (
	"context"
	"fmt"
	"time"

	"github.com/quillsign/quillsign/internal/app/config"
	domain "github.com/quillsign/quillsign/internal/domain/services"
	"github.com/quillsign/quillsign/internal/infrastructure/auth/jwt"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/email/mailgun"
	"github.com/quillsign/quillsign/internal/infrastructure/pdf"
	"github.com/quillsign/quillsign/internal/infrastructure/queue"
	"github.com/quillsign/quillsign/internal/infrastructure/repositories/postgresql"
	"github.com/quillsign/quillsign/internal/infrastructure/storage/local"
	"github.com/quillsign/quillsign/internal/infrastructure/storage/supabase"
	"github.com/quillsign/quillsign/pkg/logger"
)

// Manager wires the infrastructure into the domain services. Both the
// API server and the worker build one and pick the pieces they need.
type Manager struct {
	Config *config.Config
	Logger *logger.Logger

	DB     *database.DB
	Queue  *queue.Queue
	Store  *postgresql.Repositories
	Blobs  domain.BlobStore
	Tokens *jwt.Manager
	PDF    *pdf.Client

	Accounts  *domain.AccountService
	Documents *domain.DocumentService
	Signing   *domain.SigningService
	Audit     *domain.AuditService
	Tasks     *domain.TaskService
}

func NewManager(cfg *config.Config, log *logger.Logger) (*Manager, error) {
	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	taskQueue, err := queue.New(cfg.Redis.URL, cfg.Queue.KeyPrefix, cfg.Redis.PoolSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		taskQueue.Close()
		db.Close()
		return nil, err
	}

	store := postgresql.NewRepositories(db)
	tokens := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	pdfClient := pdf.NewClient(pdf.Config{
		ServiceURL:     cfg.PDF.ServiceURL,
		LocatorURL:     cfg.PDF.LocatorURL,
		RendererURL:    cfg.PDF.RendererURL,
		RequestTimeout: cfg.PDF.RequestTimeout,
	})
	rasterizer := pdf.NewRasterizer(cfg.PDF.GhostscriptBin)
	emailSender := mailgun.NewSender(cfg.Email.MailgunBaseURL, cfg.Email.RequestTimeout)

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, falling back to UTC", "timezone", cfg.Timezone)
		tz = time.UTC
	}

	audit := domain.NewAuditService(store, pdfClient, log)
	webhooks := domain.NewWebhookDispatcher(store, cfg.PDF.RequestTimeout, log)

	m := &Manager{
		Config: cfg,
		Logger: log,
		DB:     db,
		Queue:  taskQueue,
		Store:  store,
		Blobs:  blobs,
		Tokens: tokens,
		PDF:    pdfClient,

		Accounts:  domain.NewAccountService(store, tokens, log),
		Documents: domain.NewDocumentService(store, blobs, pdfClient, taskQueue, log),
		Signing:   domain.NewSigningService(store, blobs, taskQueue, tz, log),
		Audit:     audit,
		Tasks: domain.NewTaskService(
			store, blobs,
			pdfClient, pdfClient, pdfClient, pdfClient,
			rasterizer, emailSender,
			audit, webhooks, taskQueue,
			domain.EmailDefaults{
				Subject: cfg.Email.DefaultSubject,
				Body:    cfg.Email.DefaultBody,
				Sender:  cfg.Email.DefaultSender,
			},
			log,
		),
	}
	return m, nil
}

func newBlobStore(cfg *config.Config) (domain.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "supabase":
		return supabase.NewStorageService(supabase.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.ServiceKey,
			Bucket: cfg.Storage.Bucket,
		})
	case "local":
		return local.NewStorageService(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage provider: %q", cfg.Storage.Provider)
	}
}

// HealthCheck reports the state of each backing dependency.
func (m *Manager) HealthCheck(ctx context.Context) map[string]string {
	status := map[string]string{"database": "ok", "redis": "ok"}
	if err := m.Store.HealthCheck(ctx); err != nil {
		status["database"] = err.Error()
	}
	if err := m.Queue.Ping(ctx); err != nil {
		status["redis"] = err.Error()
	}
	return status
}

// Close releases the queue and database connections.
func (m *Manager) Close() error {
	if err := m.Queue.Close(); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}
	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
