package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/internal/infrastructure/queue"
	"github.com/quillsign/quillsign/pkg/logger"
)

// TaskService holds the background task bodies. Every handler is
// idempotent with respect to the usage rows it writes; re-runs append
// fresh rows rather than mutating old ones.
type TaskService struct {
	store      repositories.Store
	blobs      BlobStore
	locator    FieldLocator
	stamper    Stamper
	concat     Concatenator
	renderer   AuditRenderer
	rasterizer PageRasterizer
	email      EmailSender
	audit      *AuditService
	webhooks   *WebhookDispatcher
	queue      TaskQueue
	defaults   EmailDefaults
	logger     *logger.Logger
}

// EmailDefaults is the reminder template used when a business has no
// email-template config row, and the fallback for keys the row omits.
type EmailDefaults struct {
	Subject string
	Body    string
	Sender  string
}

func NewTaskService(
	store repositories.Store,
	blobs BlobStore,
	locator FieldLocator,
	stamper Stamper,
	concat Concatenator,
	renderer AuditRenderer,
	rasterizer PageRasterizer,
	email EmailSender,
	audit *AuditService,
	webhooks *WebhookDispatcher,
	taskQueue TaskQueue,
	defaults EmailDefaults,
	log *logger.Logger,
) *TaskService {
	return &TaskService{
		store:      store,
		blobs:      blobs,
		locator:    locator,
		stamper:    stamper,
		concat:     concat,
		renderer:   renderer,
		rasterizer: rasterizer,
		email:      email,
		audit:      audit,
		webhooks:   webhooks,
		queue:      taskQueue,
		defaults:   defaults,
		logger:     log,
	}
}

// RegisterAll binds every task body to the worker with its retry
// policy. Webhook delivery for file events only retries the
// commit-before-enqueue race; emails and blob deletion never retry.
func (s *TaskService) RegisterAll(w *queue.Worker, maxRetries int) {
	w.Register(TaskLocateFields, s.HandleLocateFields, queue.RetryAlways(maxRetries))
	w.Register(TaskStampPDF, s.HandleStampPDF, queue.RetryAlways(maxRetries))
	w.Register(TaskRenderPages, s.HandleRenderPages, queue.RetryAlways(maxRetries))
	w.Register(TaskWebhooksFieldUsage, s.HandleWebhooksFieldUsage, queue.RetryAlways(maxRetries))
	w.Register(TaskWebhooksFileUsage, s.HandleWebhooksFileUsage, queue.RetryPolicy{
		MaxRetries: maxRetries,
		RetryOn: func(err error) bool {
			return errors.Is(err, repositories.ErrNotFound)
		},
	})
	w.Register(TaskSendEmail, s.HandleSendEmail, queue.NoRetry())
	w.Register(TaskDeleteBlobs, s.HandleDeleteBlobs, queue.NoRetry())
}

// HandleLocateFields measures the original upload with the field
// locator and stores the geometry as a describe-fields row. Locator
// failures leave an empty sentinel row behind so readers stop polling.
func (s *TaskService) HandleLocateFields(ctx context.Context, raw json.RawMessage) error {
	var args DocumentTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}

	file, err := s.store.Usages().OriginalDocumentFile(ctx, args.DocID)
	if err != nil {
		return fmt.Errorf("failed to find original revision: %w", err)
	}
	content, err := s.blobs.Download(ctx, file.Filename)
	if err != nil {
		return fmt.Errorf("failed to download document: %w", err)
	}

	geometry, err := s.locator.LocateFields(ctx, content)
	if err != nil {
		s.logger.Error("field locator failed", "doc_id", models.CompactID(args.DocID), "error", err)
		return s.store.Usages().AddFileUsage(ctx, &models.FileUsage{
			DocumentID: args.DocID,
			UsageType:  models.FileUsageDescribeFields,
			Data:       models.JSONB{},
		})
	}

	if err := s.mergeFieldTypes(ctx, args.DocID, geometry); err != nil {
		return err
	}

	return s.store.Usages().AddFileUsage(ctx, &models.FileUsage{
		DocumentID: args.DocID,
		UsageType:  models.FileUsageDescribeFields,
		Data:       models.JSONB(geometry),
	})
}

// mergeFieldTypes annotates the locator geometry with the declared type
// of each field. Geometry entries the database does not know are left
// untouched.
func (s *TaskService) mergeFieldTypes(ctx context.Context, docID uuid.UUID, geometry map[string]interface{}) error {
	declared, ok := geometry["fields"].([]interface{})
	if !ok {
		return nil
	}

	fields, err := s.store.Fields().ListByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to list fields: %w", err)
	}
	types := make(map[string]string, len(fields))
	for _, f := range fields {
		types[f.Name] = string(f.Type)
	}

	for _, entry := range declared {
		geom, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := geom["name"].(string)
		if t, known := types[name]; known {
			geom["type"] = t
		}
	}
	return nil
}

// HandleStampPDF flattens the current field values into the source PDF,
// appends the rendered audit trail and publishes the result as a new
// revision. Failures before the File row is committed propagate for
// retry; afterwards the failure itself goes on the audit trail.
func (s *TaskService) HandleStampPDF(ctx context.Context, raw json.RawMessage) error {
	var args DocumentTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}

	stamps, err := s.buildStamps(ctx, args.DocID)
	if err != nil {
		return err
	}

	source, err := s.store.Usages().SourceDocumentFile(ctx, args.DocID)
	if err != nil {
		return fmt.Errorf("failed to find source revision: %w", err)
	}
	pdf, err := s.blobs.Download(ctx, source.Filename)
	if err != nil {
		return fmt.Errorf("failed to download source: %w", err)
	}

	stamped, err := s.stamper.Stamp(ctx, pdf, stamps)
	if err != nil {
		return fmt.Errorf("failed to stamp document: %w", err)
	}

	trail, err := s.audit.DocumentTrail(ctx, args.DocID)
	if err != nil {
		return err
	}
	appendix, err := s.renderer.RenderAuditLog(ctx, trail)
	if err != nil {
		return fmt.Errorf("failed to render audit appendix: %w", err)
	}

	final, err := s.concat.Concat(ctx, [][]byte{stamped, appendix})
	if err != nil {
		return fmt.Errorf("failed to concat document: %w", err)
	}

	fileID := uuid.New()
	file := &models.File{ID: fileID, Filename: models.CompactID(fileID)}
	if err := s.blobs.Upload(ctx, file.Filename, final, "application/pdf"); err != nil {
		return fmt.Errorf("failed to upload stamped document: %w", err)
	}
	if err := s.store.Files().Create(ctx, file); err != nil {
		return fmt.Errorf("failed to persist stamped file: %w", err)
	}

	// The revision exists now. Anything that goes wrong from here is
	// recorded on the trail instead of retried.
	usage := &models.FileUsage{
		DocumentID: args.DocID,
		FileID:     &fileID,
		UsageType:  models.FileUsageEndStamp,
	}
	if err := s.store.Usages().AddFileUsage(ctx, usage); err != nil {
		s.recordStampFailure(ctx, args.DocID, err)
		return nil
	}

	if err := s.queue.Enqueue(ctx, TaskRenderPages, DocumentTaskArgs{DocID: args.DocID}); err != nil {
		s.logger.Error("failed to enqueue render task", "doc_id", models.CompactID(args.DocID), "error", err)
	}
	return nil
}

// recordStampFailure appends a file-less endstamp row carrying the
// error and notifies webhooks about it.
func (s *TaskService) recordStampFailure(ctx context.Context, docID uuid.UUID, cause error) {
	s.logger.Error("stamp failed after revision persisted", "doc_id", models.CompactID(docID), "error", cause)

	usage := &models.FileUsage{
		DocumentID: docID,
		UsageType:  models.FileUsageEndStamp,
		Data:       models.JSONB{"error": cause.Error()},
	}
	if err := s.store.Usages().AddFileUsage(ctx, usage); err != nil {
		s.logger.Error("failed to record stamp failure", "doc_id", models.CompactID(docID), "error", err)
		return
	}
	if err := s.queue.Enqueue(ctx, TaskWebhooksFileUsage, UsageTaskArgs{UsageID: usage.ID}); err != nil {
		s.logger.Error("failed to enqueue webhook task", "error", err)
	}
}

// buildStamps projects the newest filled rows into stamper input:
// signatures become images (their blob downloaded), other fields become
// text, and everything never filled is blanked out.
func (s *TaskService) buildStamps(ctx context.Context, docID uuid.UUID) ([]FieldStamp, error) {
	filled, err := s.store.Usages().LatestFilledUsages(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load filled fields: %w", err)
	}

	var stamps []FieldStamp
	for _, usage := range filled {
		switch usage.Field.Type {
		case models.FieldTypeSignature:
			if usage.FileID == nil {
				stamps = append(stamps, FieldStamp{Name: usage.Field.Name, Type: "blank"})
				continue
			}
			file, err := s.store.Files().GetByID(ctx, *usage.FileID)
			if err != nil {
				return nil, fmt.Errorf("failed to load signature file: %w", err)
			}
			image, err := s.blobs.Download(ctx, file.Filename)
			if err != nil {
				return nil, fmt.Errorf("failed to download signature: %w", err)
			}
			stamps = append(stamps, FieldStamp{
				Name:  usage.Field.Name,
				Type:  "image",
				Value: file.Filename,
				Image: image,
			})
		default:
			value, ok := usage.Data["value"].(string)
			if !ok {
				stamps = append(stamps, FieldStamp{Name: usage.Field.Name, Type: "blank"})
				continue
			}
			stamps = append(stamps, FieldStamp{
				Name:  usage.Field.Name,
				Type:  "text",
				Value: value,
			})
		}
	}

	unfilled, err := s.store.Usages().UnfilledFieldNames(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unfilled fields: %w", err)
	}
	for _, name := range unfilled {
		stamps = append(stamps, FieldStamp{Name: name, Type: "blank"})
	}
	return stamps, nil
}

// HandleRenderPages rasterizes the newest revision and stores one
// rendered page row per produced PNG.
func (s *TaskService) HandleRenderPages(ctx context.Context, raw json.RawMessage) error {
	var args DocumentTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}

	file, err := s.store.Usages().LatestDocumentFile(ctx, args.DocID)
	if err != nil {
		return fmt.Errorf("failed to find document revision: %w", err)
	}
	pdf, err := s.blobs.Download(ctx, file.Filename)
	if err != nil {
		return fmt.Errorf("failed to download document: %w", err)
	}

	pages, err := s.rasterizer.RasterizePages(ctx, pdf)
	if err != nil {
		return fmt.Errorf("failed to rasterize document: %w", err)
	}

	rendered := make([]*models.File, len(pages))
	for i, png := range pages {
		fileID := uuid.New()
		rendered[i] = &models.File{ID: fileID, Filename: models.CompactID(fileID)}
		if err := s.blobs.Upload(ctx, rendered[i].Filename, png, "image/png"); err != nil {
			return fmt.Errorf("failed to upload page %d: %w", i+1, err)
		}
	}

	return s.store.WithTx(ctx, func(tx repositories.Store) error {
		for i, file := range rendered {
			if err := tx.Files().Create(ctx, file); err != nil {
				return fmt.Errorf("failed to persist page file: %w", err)
			}
			page := &models.RenderedPage{
				DocumentID: args.DocID,
				FileID:     file.ID,
				Page:       i + 1,
			}
			if err := tx.RenderedPages().Create(ctx, page); err != nil {
				return fmt.Errorf("failed to persist rendered page: %w", err)
			}
		}
		return nil
	})
}

// emailTemplate is the merged email-template config of a business.
type emailTemplate struct {
	Subject string
	Body    string
	Server  string
	Sender  string
	ReplyTo string
	APIKey  string
}

// HandleSendEmail delivers reminder emails: to every signer with an
// unfilled field, or to one named signer. Without a configured Mailgun
// server nothing is minted or recorded.
func (s *TaskService) HandleSendEmail(ctx context.Context, raw json.RawMessage) error {
	var args SendEmailArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}

	recipients, err := s.resolveRecipients(ctx, args)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	doc, err := s.store.Documents().GetByID(ctx, args.DocID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	owner, err := s.store.Users().GetByID(ctx, doc.UserID)
	if err != nil {
		return fmt.Errorf("failed to load owner: %w", err)
	}
	template, err := s.loadTemplate(ctx, owner.BusinessID)
	if err != nil {
		return err
	}

	if template.Server == "" || template.APIKey == "" {
		s.logger.Error("reminder requested but no email server configured",
			"doc_id", models.CompactID(args.DocID))
		return nil
	}

	for _, recipient := range recipients {
		if err := s.sendReminder(ctx, template, doc, recipient); err != nil {
			return err
		}
	}
	return nil
}

func (s *TaskService) resolveRecipients(ctx context.Context, args SendEmailArgs) ([]models.User, error) {
	if args.Email == nil {
		users, err := s.store.Fields().UnfilledSigners(ctx, args.DocID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipients: %w", err)
		}
		return users, nil
	}

	signers, err := s.store.Fields().Signers(ctx, args.DocID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	for _, signer := range signers {
		if signer.Username == *args.Email {
			return []models.User{signer}, nil
		}
	}
	return nil, nil
}

// loadTemplate merges the business email-template row over the
// defaults.
func (s *TaskService) loadTemplate(ctx context.Context, businessID uint) (emailTemplate, error) {
	sender := s.defaults.Sender
	if sender == "" {
		sender = "nobody@example.com"
	}
	template := emailTemplate{
		Subject: s.defaults.Subject,
		Body:    s.defaults.Body,
		Sender:  sender,
		ReplyTo: sender,
	}

	configs, err := s.store.Businesses().GetConfigs(ctx, businessID, "email-template")
	if err != nil {
		return template, fmt.Errorf("failed to load email template: %w", err)
	}
	if len(configs) == 0 {
		return template, nil
	}

	values := configs[0].Values
	assign := func(key string, dst *string) {
		if v, ok := values[key].(string); ok && v != "" {
			*dst = v
		}
	}
	assign("subject", &template.Subject)
	assign("body", &template.Body)
	assign("server", &template.Server)
	assign("sender", &template.Sender)
	assign("reply-to", &template.ReplyTo)
	assign("apikey", &template.APIKey)
	return template, nil
}

// sendReminder mints an access URI for the recipient, substitutes it
// into the template and submits the message, recording the delivery on
// the audit trail.
func (s *TaskService) sendReminder(ctx context.Context, template emailTemplate, doc *models.Document, recipient models.User) error {
	token := make([]byte, 66)
	if _, err := rand.Read(token); err != nil {
		return fmt.Errorf("failed to generate access uri: %w", err)
	}
	accessID := base64.StdEncoding.EncodeToString(token)

	if err := s.store.AccessURIs().Create(ctx, &models.AccessURI{
		URI:        accessID,
		UserID:     recipient.ID,
		DocumentID: doc.ID,
	}); err != nil {
		return fmt.Errorf("failed to persist access uri: %w", err)
	}

	params := url.Values{
		"auth": {accessID},
		"doc":  {models.CompactID(doc.ID)},
	}
	body := strings.ReplaceAll(template.Body, "{{params}}", params.Encode())

	err := s.email.Send(ctx, EmailMessage{
		Server:  template.Server,
		APIKey:  template.APIKey,
		Sender:  template.Sender,
		ReplyTo: template.ReplyTo,
		To:      recipient.Username,
		Subject: template.Subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send reminder to %s: %w", recipient.Username, err)
	}

	usage := &models.FileUsage{
		DocumentID: doc.ID,
		UsageType:  models.FileUsageReminderEmailSent,
		Data: models.JSONB{
			"sender": template.Sender,
			"target": recipient.Username,
		},
	}
	if err := s.store.Usages().AddFileUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record reminder: %w", err)
	}
	if err := s.queue.Enqueue(ctx, TaskWebhooksFileUsage, UsageTaskArgs{UsageID: usage.ID}); err != nil {
		s.logger.Error("failed to enqueue webhook task", "error", err)
	}
	return nil
}

// HandleWebhooksFileUsage delivers webhook calls for one FileUsage row.
func (s *TaskService) HandleWebhooksFileUsage(ctx context.Context, raw json.RawMessage) error {
	var args UsageTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}
	return s.webhooks.DispatchFileUsage(ctx, args.UsageID)
}

// HandleWebhooksFieldUsage delivers webhook calls for one FieldUsage
// row.
func (s *TaskService) HandleWebhooksFieldUsage(ctx context.Context, raw json.RawMessage) error {
	var args UsageTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}
	return s.webhooks.DispatchFieldUsage(ctx, args.UsageID)
}

// HandleDeleteBlobs removes orphaned blobs best-effort; missing blobs
// are logged and skipped.
func (s *TaskService) HandleDeleteBlobs(ctx context.Context, raw json.RawMessage) error {
	var args DeleteBlobsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}

	for _, name := range args.Names {
		if err := s.blobs.Delete(ctx, name); err != nil {
			s.logger.Error("failed to delete blob", "name", name, "error", err)
		}
	}
	return nil
}
