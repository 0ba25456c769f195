package services

import (
	"context"
	"time"
)

// BlobStore is the object storage abstraction. Names are opaque blob
// keys; contents are immutable once uploaded.
type BlobStore interface {
	Upload(ctx context.Context, name string, content []byte, contentType string) error
	Download(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error)
}

// FieldExtractor parses a PDF form and returns its field names mapped
// to their template values (the text holding the field specifiers).
type FieldExtractor interface {
	ExtractFields(ctx context.Context, pdf []byte) (map[string]string, error)
}

// FieldLocator returns the page geometry of every form field, keyed by
// field name.
type FieldLocator interface {
	LocateFields(ctx context.Context, pdf []byte) (map[string]interface{}, error)
}

// FieldStamp describes one field to burn into a PDF form.
type FieldStamp struct {
	Name  string
	Type  string // "image", "text" or "blank"
	Value string // text content for "text"
	Image []byte // PNG content for "image"
}

// Stamper flattens form fields into the document.
type Stamper interface {
	Stamp(ctx context.Context, pdf []byte, stamps []FieldStamp) ([]byte, error)
}

// Concatenator merges PDFs in order into a single document.
type Concatenator interface {
	Concat(ctx context.Context, pdfs [][]byte) ([]byte, error)
}

// AuditRenderer renders an audit trail payload into a printable PDF.
type AuditRenderer interface {
	RenderAuditLog(ctx context.Context, audit interface{}) ([]byte, error)
}

// PageRasterizer renders each page of a PDF to a PNG image.
type PageRasterizer interface {
	RasterizePages(ctx context.Context, pdf []byte) ([][]byte, error)
}

// EmailMessage is a fully resolved outbound email. Server and APIKey
// select the submission endpoint; empty values mean the message cannot
// be delivered and should be skipped.
type EmailMessage struct {
	Server  string
	APIKey  string
	Sender  string
	ReplyTo string
	To      string
	Subject string
	Body    string
}

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// TaskQueue hands work to the background workers. Enqueue must only be
// called after the rows the task depends on are committed.
type TaskQueue interface {
	Enqueue(ctx context.Context, name string, args interface{}) error
}
