package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

// DocumentService implements the document lifecycle: creation from a PDF
// form, retrieval as PDF or rendered page images, field geometry info,
// deletion, reminders and terms-of-service acknowledgement.
type DocumentService struct {
	store     repositories.Store
	blobs     BlobStore
	extractor FieldExtractor
	queue     TaskQueue
	validate  *validator.Validate
	logger    *logger.Logger
}

func NewDocumentService(
	store repositories.Store,
	blobs BlobStore,
	extractor FieldExtractor,
	queue TaskQueue,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		queue:     queue,
		validate:  validator.New(),
		logger:    log,
	}
}

// CreateDocumentInput carries the parsed multipart create request. A nil
// signator email leaves the field assigned to nobody.
type CreateDocumentInput struct {
	Title     string
	Signators map[string]*string
	Content   []byte
	ClientIP  string
}

// Create validates the uploaded form against the signator declarations,
// persists the document with its fields, and kicks off the async
// pipeline (field location, initial stamp).
func (s *DocumentService) Create(ctx context.Context, scope Scope, in CreateDocumentInput) (*dto.CreateDocumentResponse, error) {
	for _, email := range in.Signators {
		if email == nil {
			continue
		}
		if err := s.validate.Var(*email, "required,email"); err != nil {
			return nil, NewValidationError(
				fmt.Sprintf("%s is not a valid email address", *email), "",
			)
		}
	}

	fields, err := s.extractor.ExtractFields(ctx, in.Content)
	if err != nil {
		s.logger.Error("form field extraction failed", "error", err)
		return nil, NewValidationError("Unable to parse PDF form", err.Error())
	}

	descriptors, err := validateSignatorFields(fields, in.Signators)
	if err != nil {
		return nil, err
	}

	refs := referenceFields(fields)
	if err := validateReferenceFields(fields, refs); err != nil {
		return nil, err
	}

	owner, err := s.store.Users().GetByID(ctx, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}

	var warnings []dto.Warning
	docID := uuid.New()
	fileID := uuid.New()
	var createdUsageID uint

	err = s.store.WithTx(ctx, func(tx repositories.Store) error {
		doc := &models.Document{ID: docID, UserID: owner.ID, Title: in.Title}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		file := &models.File{ID: fileID, Filename: models.CompactID(fileID)}
		if err := tx.Files().Create(ctx, file); err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}

		created := &models.FileUsage{
			DocumentID: docID,
			FileID:     &fileID,
			UsageType:  models.FileUsageCreated,
			Data:       models.JSONB{"ip": in.ClientIP, "user": owner.Username},
		}
		if err := tx.Usages().AddFileUsage(ctx, created); err != nil {
			return fmt.Errorf("failed to record creation: %w", err)
		}
		createdUsageID = created.ID

		if err := s.blobs.Upload(ctx, file.Filename, in.Content, "application/pdf"); err != nil {
			return fmt.Errorf("failed to upload document: %w", err)
		}

		fieldIDs := make(map[string]uuid.UUID, len(descriptors))
		for _, name := range sortedKeys(in.Signators) {
			fieldID, err := s.createField(ctx, tx, docID, descriptors[name], in.Signators[name], nil, owner.BusinessID)
			if err != nil {
				return err
			}
			fieldIDs[name] = fieldID
		}

		for _, ref := range refs {
			parentID, declared := fieldIDs[ref.Parent]
			if !declared {
				warnings = append(warnings, dto.Warning{
					Msg: fmt.Sprintf(
						"Parent field %s of field %s was not present. "+
							"Check to make sure that it doesn't depend on "+
							"a different reference field or that the parent "+
							"field exists.",
						ref.Parent, ref.Name,
					),
				})
				continue
			}
			if _, err := s.createField(ctx, tx, docID, ref, nil, &parentID, owner.BusinessID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, TaskWebhooksFileUsage, UsageTaskArgs{UsageID: createdUsageID})
	s.enqueue(ctx, TaskLocateFields, DocumentTaskArgs{DocID: docID})
	s.enqueue(ctx, TaskStampPDF, DocumentTaskArgs{DocID: docID})

	if warnings == nil {
		warnings = []dto.Warning{}
	}
	return &dto.CreateDocumentResponse{
		DocID:    models.CompactID(docID),
		Warnings: warnings,
	}, nil
}

// createField persists a field plus its seed empty usage. A non-nil
// email gets or creates a password-less user in the owner's business; a
// non-nil parent marks the field as derived.
func (s *DocumentService) createField(
	ctx context.Context,
	tx repositories.Store,
	docID uuid.UUID,
	desc *FieldDescriptor,
	email *string,
	parentID *uuid.UUID,
	businessID uint,
) (uuid.UUID, error) {
	var userID *uuid.UUID
	if email != nil {
		user, err := tx.Users().GetByUsername(ctx, *email)
		if errors.Is(err, repositories.ErrNotFound) {
			user = &models.User{BusinessID: businessID, Username: *email}
			if err := tx.Users().Create(ctx, user); err != nil {
				return uuid.Nil, fmt.Errorf("failed to create signer: %w", err)
			}
		} else if err != nil {
			return uuid.Nil, fmt.Errorf("failed to look up signer: %w", err)
		}
		userID = &user.ID
	}

	field := &models.Field{
		DocumentID: docID,
		UserID:     userID,
		ParentID:   parentID,
		Type:       models.FieldType(desc.Type),
		Name:       desc.Name,
	}
	if err := tx.Fields().Create(ctx, field); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create field: %w", err)
	}

	seed := &models.FieldUsage{FieldID: field.ID, UsageType: models.FieldUsageEmpty}
	if err := tx.Usages().AddFieldUsage(ctx, seed); err != nil {
		return uuid.Nil, fmt.Errorf("failed to seed field usage: %w", err)
	}
	return field.ID, nil
}

// validateSignatorFields checks every declared signator field against
// the extracted form fields and returns the parsed descriptors.
func validateSignatorFields(fields map[string]string, signators map[string]*string) (map[string]*FieldDescriptor, error) {
	descriptors := make(map[string]*FieldDescriptor, len(signators))
	for name := range signators {
		raw, ok := fields[name]
		if !ok {
			return nil, NewValidationError(
				fmt.Sprintf("Field %s not found in form, but present in description JSON", name), "",
			)
		}
		desc := ParseFieldDescriptor(name, raw)
		if desc == nil {
			return nil, NewValidationError(
				"Field in description JSON was in the document, but did not contain a field specifier.",
				name,
			)
		}
		if !desc.ValidType() {
			return nil, NewValidationError(
				"Field contained an invalid type",
				fmt.Sprintf("field %s has type %s", name, desc.Type),
			)
		}
		if desc.Parent != "" && !validDependentType(desc.Type) {
			return nil, NewValidationError(
				"A reference field had a type other than 'date'",
				fmt.Sprintf("field %s has type %s", name, desc.Type),
			)
		}
		descriptors[name] = desc
	}
	return descriptors, nil
}

// validateReferenceFields checks that every derived field in the form
// names an existing parent and carries a derivable type.
func validateReferenceFields(fields map[string]string, refs []*FieldDescriptor) error {
	for _, ref := range refs {
		if _, ok := fields[ref.Parent]; !ok {
			return NewValidationError(
				"Invalid reference field",
				fmt.Sprintf("Field %s references field %s, which doesn't exist", ref.Name, ref.Parent),
			)
		}
		if !validDependentType(ref.Type) {
			return NewValidationError(
				"Invalid field type",
				fmt.Sprintf("Field %s has an invalid type of %s", ref.Name, ref.Type),
			)
		}
	}
	return nil
}

// GetPDF returns the newest revision of the document and records the
// view in the audit trail.
func (s *DocumentService) GetPDF(ctx context.Context, scope Scope, docID uuid.UUID, clientIP string) ([]byte, error) {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, true); err != nil {
		return nil, err
	}

	user, err := s.store.Users().GetByID(ctx, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	viewed := &models.FileUsage{
		DocumentID: docID,
		UsageType:  models.FileUsageViewed,
		Data:       models.JSONB{"ip": clientIP, "user": user.Username},
	}
	if err := s.store.Usages().AddFileUsage(ctx, viewed); err != nil {
		return nil, fmt.Errorf("failed to record view: %w", err)
	}

	file, err := s.store.Usages().LatestDocumentFile(ctx, docID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	content, err := s.blobs.Download(ctx, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	return content, nil
}

// GetPage returns the rendered PNG for one page of the document. A page
// that has not been rendered yet reports ErrNotReady so the caller can
// ask the client to retry.
func (s *DocumentService) GetPage(ctx context.Context, scope Scope, docID uuid.UUID, page int) ([]byte, error) {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, true); err != nil {
		return nil, err
	}

	rendered, err := s.store.RenderedPages().LatestForPage(ctx, docID, page)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotReady
		}
		return nil, err
	}

	content, err := s.blobs.Download(ctx, rendered.File.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to download page: %w", err)
	}
	return content, nil
}

// Info returns the field geometry for the document, filtered down to
// the fields assigned to the caller and annotated with fill state.
// Until the field locator has run there is nothing to return and the
// caller should retry later.
func (s *DocumentService) Info(ctx context.Context, scope Scope, docID uuid.UUID) (map[string]interface{}, error) {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, true); err != nil {
		return nil, err
	}

	described, err := s.store.Usages().DescribeFields(ctx, docID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotReady
		}
		return nil, err
	}

	pages, pagesOK := described["pages"].([]interface{})
	declared, fieldsOK := described["fields"].([]interface{})
	if !pagesOK || !fieldsOK {
		// The locator failed for this document and left the sentinel
		// row behind; there is no geometry to serve.
		pages = []interface{}{}
		declared = []interface{}{}
	}

	docFields, err := s.store.Fields().ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	filledIDs, err := s.store.Usages().FilledFieldIDs(ctx, docID)
	if err != nil {
		return nil, err
	}
	filled := make(map[uuid.UUID]bool, len(filledIDs))
	for _, id := range filledIDs {
		filled[id] = true
	}

	byName := make(map[string]*models.Field, len(docFields))
	for i := range docFields {
		f := &docFields[i]
		if f.UserID != nil && *f.UserID == scope.UserID {
			byName[f.Name] = f
		}
	}

	visible := make([]interface{}, 0, len(declared))
	for _, entry := range declared {
		geom, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := geom["name"].(string)
		field, mine := byName[name]
		if !mine {
			continue
		}
		geom["id"] = models.CompactID(field.ID)
		geom["filled"] = filled[field.ID]
		geom["optional"] = false
		visible = append(visible, geom)
	}

	doc, err := s.store.Documents().GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"title":  doc.Title,
		"pages":  pages,
		"fields": visible,
	}, nil
}

// Delete removes the document with every associated row and schedules
// the orphaned blobs for deletion. Owner only.
func (s *DocumentService) Delete(ctx context.Context, scope Scope, docID uuid.UUID) error {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, false); err != nil {
		return err
	}

	blobs, err := s.store.Documents().DeleteCascade(ctx, docID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.enqueue(ctx, TaskDeleteBlobs, DeleteBlobsArgs{Names: blobs})
	return nil
}

// Remind schedules reminder emails for the document's unfilled signers,
// or for one named signer. Owner only.
func (s *DocumentService) Remind(ctx context.Context, scope Scope, docID uuid.UUID, email *string) error {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, false); err != nil {
		return err
	}

	if email != nil {
		signers, err := s.store.Fields().Signers(ctx, docID)
		if err != nil {
			return err
		}
		known := false
		for _, signer := range signers {
			if signer.Username == *email {
				known = true
				break
			}
		}
		if !known {
			return NewValidationError(
				fmt.Sprintf("%s has no fields on this document", *email), "",
			)
		}
	}

	if err := s.queue.Enqueue(ctx, TaskSendEmail, SendEmailArgs{DocID: docID, Email: email}); err != nil {
		return fmt.Errorf("failed to enqueue reminder: %w", err)
	}
	return nil
}

// AgreeTOS records that the caller accepted the terms of service for
// this document. The caller must hold at least one field on it.
func (s *DocumentService) AgreeTOS(ctx context.Context, scope Scope, docID uuid.UUID, clientIP string) error {
	if err := requireDocumentAccess(ctx, s.store, scope, docID, true); err != nil {
		return err
	}

	hasField, err := s.store.Fields().UserHasFieldOnDocument(ctx, docID, scope.UserID)
	if err != nil {
		return err
	}
	if !hasField {
		return NewValidationError("You have no fields on this document", "")
	}

	user, err := s.store.Users().GetByID(ctx, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	usage := &models.FileUsage{
		DocumentID: docID,
		UsageType:  models.FileUsageAgreeTOS,
		Data: models.JSONB{
			"ip":   clientIP,
			"user": user.Username,
			"uid":  models.CompactID(user.ID),
		},
	}
	if err := s.store.Usages().AddFileUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record agreement: %w", err)
	}

	s.enqueue(ctx, TaskWebhooksFileUsage, UsageTaskArgs{UsageID: usage.ID})
	return nil
}

// enqueue hands off a background task after the rows it reads are
// committed. Queue outages are logged rather than failing the request;
// the durable rows stay consistent either way.
func (s *DocumentService) enqueue(ctx context.Context, name string, args interface{}) {
	if err := s.queue.Enqueue(ctx, name, args); err != nil {
		s.logger.Error("failed to enqueue task", "task", name, "error", err)
	}
}

func sortedKeys(m map[string]*string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
