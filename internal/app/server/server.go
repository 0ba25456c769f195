package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/quillsign/quillsign/internal/app/config"
	"github.com/quillsign/quillsign/internal/app/handlers"
	"github.com/quillsign/quillsign/internal/app/middleware"
	"github.com/quillsign/quillsign/internal/app/services"
	"github.com/quillsign/quillsign/pkg/logger"
)

type Server struct {
	config  *config.Config
	logger  *logger.Logger
	manager *services.Manager
	router  *gin.Engine
	server  *http.Server
}

// New builds the gin engine and mounts the API routes on top of the
// service manager.
func New(cfg *config.Config, log *logger.Logger, m *services.Manager) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware(cfg))
	router.Use(middleware.ClientIP())

	s := &Server{
		config:  cfg,
		logger:  log,
		manager: m,
		router:  router,
	}
	s.setupRoutes()
	return s
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.Server.Host + ":" + s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	base := handlers.NewBaseHandler(s.logger)
	auth := handlers.NewAuthHandler(base, s.manager.Accounts)
	account := handlers.NewAccountHandler(base, s.manager.Accounts)
	document := handlers.NewDocumentHandler(base, s.manager.Documents, s.manager.Audit, s.config.Upload.MaxFileSize)
	field := handlers.NewFieldHandler(base, s.manager.Signing, s.config.Upload.MaxFileSize)

	authenticated := middleware.Auth(s.manager.Tokens)

	s.router.GET("/health", s.healthCheck)

	s.router.POST("/auth", auth.Login)
	s.router.POST("/auth/access-id", auth.LoginWithAccessURI)

	ac := s.router.Group("/account")
	{
		ac.POST("/create", account.Create)
		ac.POST("/resurrect", account.Resurrect)
		ac.POST("/change-password", authenticated, account.ChangePassword)
		ac.POST("/delete", authenticated, account.Delete)
		ac.GET("/documents", authenticated, account.Documents)
		ac.GET("/fields", authenticated, account.Fields)
	}

	doc := s.router.Group("/document", authenticated)
	{
		doc.POST("", document.Create)
		doc.GET("/:docId", document.Get)
		doc.DELETE("/:docId", document.Delete)
		doc.GET("/:docId/info", document.Info)
		doc.GET("/:docId/audit", document.Audit)
		doc.POST("/:docId/agree-tos", document.AgreeTOS)
		doc.POST("/:docId/remind", document.Remind)
	}

	fld := s.router.Group("/field", authenticated)
	{
		fld.POST("/:fieldId/fill", field.Fill)
		fld.POST("/:fieldId/fill-text", field.FillText)
		fld.POST("/bulk-fill", field.BulkFill)
	}
}

// healthCheck pings the database and redis.
func (s *Server) healthCheck(c *gin.Context) {
	status := s.manager.HealthCheck(c.Request.Context())
	code := http.StatusOK
	for _, v := range status {
		if v != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "accessId"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}
		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"client_ip", middleware.GetClientIP(c),
		)
	}
}
