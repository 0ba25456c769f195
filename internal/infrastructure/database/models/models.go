package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Custom Types
type FieldType string
type FileUsageType string
type FieldUsageType string

const (
	// Field Types
	FieldTypeSignature FieldType = "signature"
	FieldTypeText      FieldType = "text"
	FieldTypeDate      FieldType = "date"

	// File Usage Types
	FileUsageCreated           FileUsageType = "created"
	FileUsageUpdated           FileUsageType = "updated"
	FileUsageViewed            FileUsageType = "viewed"
	FileUsageStartStamp        FileUsageType = "startstamp"
	FileUsageEndStamp          FileUsageType = "endstamp"
	FileUsageReminderEmailSent FileUsageType = "reminder-email-sent"
	FileUsageDescribeFields    FileUsageType = "describe-fields"
	FileUsageAgreeTOS          FileUsageType = "agree-tos"
	FileUsageAllFieldsFilled   FileUsageType = "all-fields-filled"

	// Field Usage Types
	FieldUsageFilled   FieldUsageType = "filled"
	FieldUsageEmpty    FieldUsageType = "empty"
	FieldUsageAgreeTOS FieldUsageType = "agree-tos"
)

// ValidFieldType reports whether s names a known field type
func ValidFieldType(s string) bool {
	switch FieldType(s) {
	case FieldTypeSignature, FieldTypeText, FieldTypeDate:
		return true
	}
	return false
}

// JSONB type for PostgreSQL jsonb columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		// sqlite hands jsonb columns back as text
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
}

// Business is the tenant root; it owns users and keyed configuration rows.
type Business struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(255);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	// Relationships
	Users   []User           `json:"users,omitempty" gorm:"foreignKey:BusinessID"`
	Configs []BusinessConfig `json:"configs,omitempty" gorm:"foreignKey:BusinessID"`
}

// BusinessConfig holds keyed JSON blobs per business. Recognized keys:
// "webhook" (multiple rows allowed, one URL each) and "email-template"
// (at most one row).
type BusinessConfig struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	BusinessID uint   `json:"business_id" gorm:"not null;index"`
	Key        string `json:"key" gorm:"type:varchar(100);not null;index"`
	Values     JSONB  `json:"values" gorm:"type:jsonb"`

	// Relationships
	Business Business `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
}

// User accounts double as signers: a user with a null password hash is
// password-less and can only authenticate through an access URI.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID   uint      `json:"business_id" gorm:"not null;index"`
	Username     string    `json:"username" gorm:"type:varchar(320);uniqueIndex;not null"`
	PasswordHash *string   `json:"-" gorm:"type:varchar(255)"`
	Deleted      bool      `json:"deleted" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	// Relationships
	Business   Business    `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
	Documents  []Document  `json:"documents,omitempty" gorm:"foreignKey:UserID"`
	Fields     []Field     `json:"fields,omitempty" gorm:"foreignKey:UserID"`
	AccessURIs []AccessURI `json:"access_uris,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Document struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Title  string    `json:"title" gorm:"type:varchar(255);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	// Relationships
	Owner         User           `json:"owner,omitempty" gorm:"foreignKey:UserID"`
	Fields        []Field        `json:"fields,omitempty" gorm:"foreignKey:DocumentID"`
	FileUsages    []FileUsage    `json:"file_usages,omitempty" gorm:"foreignKey:DocumentID"`
	RenderedPages []RenderedPage `json:"rendered_pages,omitempty" gorm:"foreignKey:DocumentID"`
	AccessURIs    []AccessURI    `json:"access_uris,omitempty" gorm:"foreignKey:DocumentID"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Field is a fillable slot on a document. UserID is null for dependent
// fields, whose value is derived when the parent field is filled.
// Dependent fields are always of type date and the parent must live on
// the same document.
type Field struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID uuid.UUID  `json:"document_id" gorm:"type:uuid;not null;index"`
	UserID     *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	ParentID   *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	Type       FieldType  `json:"type" gorm:"type:varchar(20);not null"`
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`

	// Relationships
	Document Document     `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
	User     *User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Parent   *Field       `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Usages   []FieldUsage `json:"usages,omitempty" gorm:"foreignKey:FieldID"`
}

func (f *Field) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// File is one immutable blob in object storage; Filename is the opaque
// blob key.
type File struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Filename   string    `json:"filename" gorm:"type:varchar(255);not null"`
	RequestURI *string   `json:"request_uri" gorm:"type:varchar(2048)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// FileUsage is an append-only event on a document. Rows are never
// mutated; together they form the document's audit history.
type FileUsage struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	DocumentID uuid.UUID     `json:"document_id" gorm:"type:uuid;not null;index"`
	FileID     *uuid.UUID    `json:"file_id" gorm:"type:uuid;index"`
	UsageType  FileUsageType `json:"usage_type" gorm:"type:varchar(30);not null;index"`
	Timestamp  time.Time     `json:"timestamp" gorm:"autoCreateTime;not null;index"`
	Data       JSONB         `json:"data" gorm:"type:jsonb"`

	// Relationships
	Document Document `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
	File     *File    `json:"file,omitempty" gorm:"foreignKey:FileID"`
}

// FieldUsage is an append-only event on a field. The current value of
// a field is its newest row.
type FieldUsage struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FieldID   uuid.UUID      `json:"field_id" gorm:"type:uuid;not null;index"`
	FileID    *uuid.UUID     `json:"file_id" gorm:"type:uuid;index"`
	UsageType FieldUsageType `json:"usage_type" gorm:"type:varchar(20);not null;index"`
	Timestamp time.Time      `json:"timestamp" gorm:"autoCreateTime;not null;index"`
	Data      JSONB          `json:"data" gorm:"type:jsonb"`

	// Relationships
	Field Field `json:"field,omitempty" gorm:"foreignKey:FieldID"`
	File  *File `json:"file,omitempty" gorm:"foreignKey:FileID"`
}

// AccessURI grants bounded access to one (user, document) pair. The
// URI string is the capability; revocation is permanent.
type AccessURI struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	URI        string    `json:"uri" gorm:"type:varchar(128);uniqueIndex;not null"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	DocumentID uuid.UUID `json:"document_id" gorm:"type:uuid;not null;index"`
	Revoked    bool      `json:"revoked" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	// Relationships
	User     User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Document Document `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
}

// RenderedPage caches one page of a document rasterized to PNG; the
// newest row per (document, page) wins.
type RenderedPage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DocumentID uuid.UUID `json:"document_id" gorm:"type:uuid;not null;index:idx_rendered_doc_page"`
	FileID     uuid.UUID `json:"file_id" gorm:"type:uuid;not null"`
	Page       int       `json:"page" gorm:"not null;index:idx_rendered_doc_page"`

	// Relationships
	Document Document `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
	File     File     `json:"file,omitempty" gorm:"foreignKey:FileID"`
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Business{},
		&BusinessConfig{},
		&User{},
		&Document{},
		&Field{},
		&File{},
		&FileUsage{},
		&FieldUsage{},
		&AccessURI{},
		&RenderedPage{},
	}
}
