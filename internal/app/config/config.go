package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Timezone    string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Storage     StorageConfig
	Supabase    SupabaseConfig
	PDF         PDFConfig
	Email       EmailConfig
	Queue       QueueConfig
	Upload      UploadConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL     string
	TestURL string
}

type RedisConfig struct {
	URL      string
	PoolSize int
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type StorageConfig struct {
	Provider string
	Path     string
	Bucket   string
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
}

// PDFConfig points at the external PDF collaborators: the stamping
// service (which also extracts form-field names), the field locator
// and the audit-log renderer.
type PDFConfig struct {
	ServiceURL     string
	LocatorURL     string
	RendererURL    string
	GhostscriptBin string
	RequestTimeout time.Duration
}

type EmailConfig struct {
	MailgunBaseURL string
	DefaultSender  string
	DefaultSubject string
	DefaultBody    string
	RequestTimeout time.Duration
}

type QueueConfig struct {
	KeyPrefix   string
	Concurrency int
	TaskTimeout time.Duration
	MaxRetries  int
}

type UploadConfig struct {
	MaxFileSize int64
}

// Load configuration from environment variables
func Load() (*Config, error) {
	// Load .env file in non-production environments
	env := os.Getenv("ENVIRONMENT")
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			// .env file is optional
		}
	}

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Timezone:    getEnv("TIMEZONE", "UTC"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:            getEnv("HOST", "localhost"),
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
			ReadTimeout:     parseDuration(getEnv("SERVER_READ_TIMEOUT", "15s")),
			WriteTimeout:    parseDuration(getEnv("SERVER_WRITE_TIMEOUT", "60s")),
			ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s")),
		},
		Database: DatabaseConfig{
			URL:     getEnv("DATABASE_URL", ""),
			TestURL: getEnv("DATABASE_URL_TEST", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize: parseInt(getEnv("REDIS_POOL_SIZE", "10")),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			TokenExpiry: parseDuration(getEnv("TOKEN_EXPIRY", "24h")),
		},
		Storage: StorageConfig{
			Provider: getEnv("STORAGE_PROVIDER", "local"),
			Path:     getEnv("LOCAL_STORAGE_PATH", "./uploads"),
			Bucket:   getEnv("STORAGE_BUCKET", "documents"),
		},
		Supabase: SupabaseConfig{
			URL:        getEnv("SUPABASE_URL", ""),
			ServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		},
		PDF: PDFConfig{
			ServiceURL:     getEnv("PDF_SERVICE_URL", "http://pdfservice:80"),
			LocatorURL:     getEnv("FIELD_LOCATOR_URL", "http://field-locator:80"),
			RendererURL:    getEnv("AUDIT_RENDERER_URL", "http://audit-renderer:80"),
			GhostscriptBin: getEnv("GHOSTSCRIPT_BIN", "gs"),
			RequestTimeout: parseDuration(getEnv("PDF_REQUEST_TIMEOUT", "120s")),
		},
		Email: EmailConfig{
			MailgunBaseURL: getEnv("MAILGUN_BASE_URL", "https://api.mailgun.net/v3"),
			DefaultSender:  getEnv("MAIL_DEFAULT_SENDER", "noreply@example.com"),
			DefaultSubject: getEnv("DEFAULT_EMAIL_SUBJECT", "You have a document waiting to be signed"),
			DefaultBody:    getEnv("DEFAULT_EMAIL_BODY", "\nhttp://localhost:3000?{{params}}\n"),
			RequestTimeout: parseDuration(getEnv("EMAIL_REQUEST_TIMEOUT", "30s")),
		},
		Queue: QueueConfig{
			KeyPrefix:   getEnv("QUEUE_KEY_PREFIX", "quillsign:tasks"),
			Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "5")),
			TaskTimeout: parseDuration(getEnv("TASK_TIME_LIMIT", "180s")),
			MaxRetries:  parseInt(getEnv("TASK_MAX_RETRIES", "5")),
		},
		Upload: UploadConfig{
			MaxFileSize: parseInt64(getEnv("MAX_FILE_SIZE", "52428800")),
		},
	}

	// Validate required configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDatabaseURL returns the appropriate database URL based on environment
func (c *Config) GetDatabaseURL() string {
	if c.Environment == "test" && c.Database.TestURL != "" {
		return c.Database.TestURL
	}
	return c.Database.URL
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

func validate(config *Config) error {
	// Database URL is optional for development
	if config.IsProduction() && config.GetDatabaseURL() == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if config.Storage.Provider == "supabase" && (config.Supabase.URL == "" || config.Supabase.ServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase storage")
	}
	if config.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string) int {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return 0
}

func parseInt64(value string) int64 {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	return 0
}

func parseDuration(value string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return 0
}
