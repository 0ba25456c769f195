package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/infrastructure/database"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

// TestDB wraps the database for testing
type TestDB struct {
	*database.DB
}

// NewTestDB creates a new test database connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	// Use DATABASE_URL_TEST if available (for Docker), otherwise SQLite
	databaseURL := os.Getenv("DATABASE_URL_TEST")
	if databaseURL == "" {
		// Use SQLite in-memory for testing
		databaseURL = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	}

	db, err := database.New(databaseURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{DB: db}
}

// Cleanup closes the test database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestBusiness creates a test business
func (db *TestDB) CreateTestBusiness(t *testing.T) *models.Business {
	t.Helper()

	business := &models.Business{
		Name: fmt.Sprintf("Test Business %s", uuid.New().String()[:8]),
	}

	if err := db.Create(business).Error; err != nil {
		t.Fatalf("Failed to create test business: %v", err)
	}

	return business
}

// CreateTestUser creates a test user with a password hash
func (db *TestDB) CreateTestUser(t *testing.T, business *models.Business) *models.User {
	t.Helper()

	hash := "$2a$10$testhashtesthashtesthashtesthashtesthashtesthashtest"
	user := &models.User{
		ID:           uuid.New(),
		BusinessID:   business.ID,
		Username:     fmt.Sprintf("test-%s@example.com", uuid.New().String()[:8]),
		PasswordHash: &hash,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// CreateTestSigner creates a password-less user
func (db *TestDB) CreateTestSigner(t *testing.T, business *models.Business) *models.User {
	t.Helper()

	user := &models.User{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Username:   fmt.Sprintf("signer-%s@example.com", uuid.New().String()[:8]),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test signer: %v", err)
	}

	return user
}

// CreateTestDocument creates a test document owned by user
func (db *TestDB) CreateTestDocument(t *testing.T, user *models.User) *models.Document {
	t.Helper()

	document := &models.Document{
		ID:     uuid.New(),
		UserID: user.ID,
		Title:  fmt.Sprintf("test-doc-%s.pdf", uuid.New().String()[:8]),
	}

	if err := db.Create(document).Error; err != nil {
		t.Fatalf("Failed to create test document: %v", err)
	}

	return document
}

// CreateTestFile creates a test file row with a random blob name
func (db *TestDB) CreateTestFile(t *testing.T) *models.File {
	t.Helper()

	blob := uuid.New()
	file := &models.File{
		ID:       uuid.New(),
		Filename: fmt.Sprintf("%x", blob[:]),
	}

	if err := db.Create(file).Error; err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	return file
}

// CreateTestField creates a field on document assigned to user (nil for
// a dependent field)
func (db *TestDB) CreateTestField(t *testing.T, document *models.Document, user *models.User, fieldType models.FieldType, name string) *models.Field {
	t.Helper()

	field := &models.Field{
		ID:         uuid.New(),
		DocumentID: document.ID,
		Type:       fieldType,
		Name:       name,
	}
	if user != nil {
		field.UserID = &user.ID
	}

	if err := db.Create(field).Error; err != nil {
		t.Fatalf("Failed to create test field: %v", err)
	}

	return field
}
