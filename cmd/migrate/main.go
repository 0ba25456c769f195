package main

import (
	"fmt"
	"os"

	"github.com/quillsign/quillsign/internal/app/config"
	"github.com/quillsign/quillsign/internal/infrastructure/auth/jwt"
	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}
	command := os.Args[1]

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrations(db, log)
	case "reset":
		resetDatabase(db, log)
	case "seed":
		seedDatabase(db, log)
	case "status":
		migrationStatus(db, log)
	default:
		log.Error("unknown command", "command", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  up     - Create or update the schema")
	fmt.Println("  reset  - Drop all tables and recreate them")
	fmt.Println("  seed   - Seed a demo business and admin account")
	fmt.Println("  status - Show which tables exist")
}

func runMigrations(db *database.DB, log *logger.Logger) {
	log.Info("running database migrations")
	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info("database migrations completed")
}

func resetDatabase(db *database.DB, log *logger.Logger) {
	log.Info("resetting database")

	// Drop dependents before their parents.
	tables := []interface{}{
		&models.RenderedPage{},
		&models.AccessURI{},
		&models.FieldUsage{},
		&models.FileUsage{},
		&models.File{},
		&models.Field{},
		&models.Document{},
		&models.User{},
		&models.BusinessConfig{},
		&models.Business{},
	}
	for _, table := range tables {
		if err := db.Migrator().DropTable(table); err != nil {
			log.Error("failed to drop table", "error", err)
		}
	}

	runMigrations(db, log)
	log.Info("database reset completed")
}

func seedDatabase(db *database.DB, log *logger.Logger) {
	log.Info("seeding database")

	business := &models.Business{Name: "Demo Business"}
	if err := db.FirstOrCreate(business, models.Business{Name: "Demo Business"}).Error; err != nil {
		log.Error("failed to create demo business", "error", err)
		return
	}

	hash, err := jwt.HashPassword("changeme")
	if err != nil {
		log.Error("failed to hash seed password", "error", err)
		return
	}
	admin := &models.User{
		BusinessID:   business.ID,
		Username:     "admin@example.com",
		PasswordHash: &hash,
	}
	if err := db.FirstOrCreate(admin, models.User{Username: "admin@example.com"}).Error; err != nil {
		log.Error("failed to create admin user", "error", err)
		return
	}

	log.Info("database seeding completed", "business", business.Name, "admin", admin.Username)
}

func migrationStatus(db *database.DB, log *logger.Logger) {
	tables := map[string]interface{}{
		"businesses":       &models.Business{},
		"business_configs": &models.BusinessConfig{},
		"users":            &models.User{},
		"documents":        &models.Document{},
		"fields":           &models.Field{},
		"files":            &models.File{},
		"file_usages":      &models.FileUsage{},
		"field_usages":     &models.FieldUsage{},
		"access_uris":      &models.AccessURI{},
		"rendered_pages":   &models.RenderedPage{},
	}
	for name, model := range tables {
		status := "exists"
		if !db.Migrator().HasTable(model) {
			status = "missing"
		}
		log.Info("table status", "table", name, "status", status)
	}
}
