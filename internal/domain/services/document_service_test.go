package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

func newDocumentService(t *testing.T, extractor *stubExtractor) (*DocumentService, *stubBlobStore, *stubQueue, *testDeps) {
	t.Helper()
	store, db := newTestStore(t)
	blobs := newStubBlobStore()
	queue := &stubQueue{}
	svc := NewDocumentService(store, blobs, extractor, queue, logger.NewForTesting())
	return svc, blobs, queue, &testDeps{store: store, db: db}
}

func TestDocumentService_Create(t *testing.T) {
	extractor := &stubExtractor{fields: map[string]string{
		"signature-1": "{signature}",
		"name-1":      "{ text }",
		"date-1":      "{date:signature-1}",
	}}
	svc, blobs, queue, deps := newDocumentService(t, extractor)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)

	resp, err := svc.Create(ctx, Scope{UserID: owner.ID}, CreateDocumentInput{
		Title: "Lease Agreement",
		Signators: map[string]*string{
			"signature-1": strptr("tenant@example.com"),
			"name-1":      nil,
		},
		Content:  []byte("%PDF-1.4 lease"),
		ClientIP: "203.0.113.7",
	})
	require.NoError(t, err)
	assert.Len(t, resp.DocID, 32)
	assert.Empty(t, resp.Warnings)

	docID, err := uuid.Parse(resp.DocID)
	require.NoError(t, err)

	// The upload landed under the created file's blob name.
	file, err := deps.store.Usages().LatestDocumentFile(ctx, docID)
	require.NoError(t, err)
	content, err := blobs.Download(ctx, file.Filename)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 lease"), content)

	// Three fields: two declared plus the dependent date.
	fields, err := deps.store.Fields().ListByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, fields, 3)

	byName := map[string]models.Field{}
	for _, f := range fields {
		byName[f.Name] = f
	}
	require.NotNil(t, byName["signature-1"].UserID)
	assert.Nil(t, byName["name-1"].UserID)
	assert.Nil(t, byName["date-1"].UserID)
	require.NotNil(t, byName["date-1"].ParentID)
	assert.Equal(t, byName["signature-1"].ID, *byName["date-1"].ParentID)
	assert.Equal(t, models.FieldTypeDate, byName["date-1"].Type)

	// The signer account was minted password-less.
	signer, err := deps.store.Users().GetByUsername(ctx, "tenant@example.com")
	require.NoError(t, err)
	assert.Nil(t, signer.PasswordHash)
	assert.Equal(t, business.ID, signer.BusinessID)

	assert.Equal(t, []string{TaskWebhooksFileUsage, TaskLocateFields, TaskStampPDF}, queue.names())
}

func TestDocumentService_Create_UndeclaredParentWarns(t *testing.T) {
	extractor := &stubExtractor{fields: map[string]string{
		"signature-1": "{signature}",
		"date-1":      "{date:signature-1}",
	}}
	svc, _, _, deps := newDocumentService(t, extractor)
	ctx := context.Background()

	owner := deps.db.CreateTestUser(t, deps.db.CreateTestBusiness(t))

	// signature-1 exists in the form but is not declared as a
	// signator, so the dependent date cannot attach to it.
	resp, err := svc.Create(ctx, Scope{UserID: owner.ID}, CreateDocumentInput{
		Title:     "doc",
		Signators: map[string]*string{},
		Content:   []byte("%PDF"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0].Msg, "signature-1")

	docID, _ := uuid.Parse(resp.DocID)
	fields, err := deps.store.Fields().ListByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestDocumentService_Create_ValidationLadder(t *testing.T) {
	cases := []struct {
		name      string
		fields    map[string]string
		signators map[string]*string
		email     *string
	}{
		{
			name:      "invalid email",
			fields:    map[string]string{"f": "{signature}"},
			signators: map[string]*string{"f": strptr("not-an-email")},
		},
		{
			name:      "signator missing from form",
			fields:    map[string]string{},
			signators: map[string]*string{"ghost": nil},
		},
		{
			name:      "signator field not fillable",
			fields:    map[string]string{"f": "just text"},
			signators: map[string]*string{"f": nil},
		},
		{
			name:      "invalid type",
			fields:    map[string]string{"f": "{checkbox}"},
			signators: map[string]*string{"f": nil},
		},
		{
			name:      "non-date reference",
			fields:    map[string]string{"f": "{text:parent}", "parent": "{signature}"},
			signators: map[string]*string{"f": nil, "parent": nil},
		},
		{
			name:      "reference to missing field",
			fields:    map[string]string{"f": "{date:nope}"},
			signators: map[string]*string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, queue, deps := newDocumentService(t, &stubExtractor{fields: tc.fields})
			owner := deps.db.CreateTestUser(t, deps.db.CreateTestBusiness(t))

			_, err := svc.Create(context.Background(), Scope{UserID: owner.ID}, CreateDocumentInput{
				Title:     "doc",
				Signators: tc.signators,
				Content:   []byte("%PDF"),
			})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Empty(t, queue.names())
		})
	}
}

func TestDocumentService_Create_ExtractorFailure(t *testing.T) {
	svc, _, _, deps := newDocumentService(t, &stubExtractor{err: assert.AnError})
	owner := deps.db.CreateTestUser(t, deps.db.CreateTestBusiness(t))

	_, err := svc.Create(context.Background(), Scope{UserID: owner.ID}, CreateDocumentInput{
		Title:     "doc",
		Signators: map[string]*string{},
		Content:   []byte("%PDF"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Unable to parse PDF form", verr.Title)
}

func TestDocumentService_GetPDF(t *testing.T) {
	svc, blobs, _, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	owner := deps.db.CreateTestUser(t, deps.db.CreateTestBusiness(t))
	doc := deps.db.CreateTestDocument(t, owner)
	file := deps.db.CreateTestFile(t)
	require.NoError(t, blobs.Upload(ctx, file.Filename, []byte("%PDF content"), "application/pdf"))
	require.NoError(t, deps.store.Usages().AddFileUsage(ctx, &models.FileUsage{
		DocumentID: doc.ID,
		FileID:     &file.ID,
		UsageType:  models.FileUsageCreated,
	}))

	content, err := svc.GetPDF(ctx, Scope{UserID: owner.ID}, doc.ID, "198.51.100.9")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF content"), content)

	// The view landed on the trail.
	trail, err := deps.store.Usages().FileUsageTrail(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.FileUsageViewed, trail[1].UsageType)
	assert.Equal(t, "198.51.100.9", trail[1].Data["ip"])
}

func TestDocumentService_GetPDF_Unauthorized(t *testing.T) {
	svc, _, _, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	stranger := deps.db.CreateTestUser(t, business)
	doc := deps.db.CreateTestDocument(t, owner)

	_, err := svc.GetPDF(ctx, Scope{UserID: stranger.ID}, doc.ID, "ip")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A token scoped to another document is rejected even for the owner.
	other := uuid.New()
	_, err = svc.GetPDF(ctx, Scope{UserID: owner.ID, TargetDocument: &other}, doc.ID, "ip")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDocumentService_GetPage_NotReady(t *testing.T) {
	svc, _, _, deps := newDocumentService(t, &stubExtractor{})
	owner := deps.db.CreateTestUser(t, deps.db.CreateTestBusiness(t))
	doc := deps.db.CreateTestDocument(t, owner)

	_, err := svc.GetPage(context.Background(), Scope{UserID: owner.ID}, doc.ID, 1)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDocumentService_Info(t *testing.T) {
	svc, _, _, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	mine := deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "signature-1")
	deps.db.CreateTestField(t, doc, owner, models.FieldTypeText, "name-1")

	scope := Scope{UserID: signer.ID}

	_, err := svc.Info(ctx, scope, doc.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, deps.store.Usages().AddFileUsage(ctx, &models.FileUsage{
		DocumentID: doc.ID,
		UsageType:  models.FileUsageDescribeFields,
		Data: models.JSONB{
			"pages": []interface{}{map[string]interface{}{"width": 612.0, "height": 792.0}},
			"fields": []interface{}{
				map[string]interface{}{"name": "signature-1", "page": 1.0},
				map[string]interface{}{"name": "name-1", "page": 1.0},
			},
		},
	}))

	info, err := svc.Info(ctx, scope, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, info["title"])
	assert.Len(t, info["pages"], 1)

	visible := info["fields"].([]interface{})
	require.Len(t, visible, 1)
	entry := visible[0].(map[string]interface{})
	assert.Equal(t, models.CompactID(mine.ID), entry["id"])
	assert.Equal(t, false, entry["filled"])
	assert.Equal(t, false, entry["optional"])
}

func TestDocumentService_Delete(t *testing.T) {
	svc, _, queue, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig")
	file := deps.db.CreateTestFile(t)
	require.NoError(t, deps.store.Usages().AddFileUsage(ctx, &models.FileUsage{
		DocumentID: doc.ID,
		FileID:     &file.ID,
		UsageType:  models.FileUsageCreated,
	}))

	// Signers cannot delete, owners can.
	err := svc.Delete(ctx, Scope{UserID: signer.ID}, doc.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, svc.Delete(ctx, Scope{UserID: owner.ID}, doc.ID))

	_, err = deps.store.Documents().GetByID(ctx, doc.ID)
	assert.Error(t, err)

	require.Equal(t, []string{TaskDeleteBlobs}, queue.names())
	args := queue.tasks[0].Args.(DeleteBlobsArgs)
	assert.Equal(t, []string{file.Filename}, args.Names)
}

func TestDocumentService_Remind(t *testing.T) {
	svc, _, queue, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig")

	err := svc.Remind(ctx, Scope{UserID: owner.ID}, doc.ID, strptr("nobody@example.com"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.Remind(ctx, Scope{UserID: owner.ID}, doc.ID, &signer.Username))
	require.Equal(t, []string{TaskSendEmail}, queue.names())
	args := queue.tasks[0].Args.(SendEmailArgs)
	assert.Equal(t, doc.ID, args.DocID)
	assert.Equal(t, signer.Username, *args.Email)

	// Signers cannot trigger reminders.
	err = svc.Remind(ctx, Scope{UserID: signer.ID}, doc.ID, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDocumentService_AgreeTOS(t *testing.T) {
	svc, _, queue, deps := newDocumentService(t, &stubExtractor{})
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig")

	// The owner holds no fields and cannot agree.
	err := svc.AgreeTOS(ctx, Scope{UserID: owner.ID}, doc.ID, "ip")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.AgreeTOS(ctx, Scope{UserID: signer.ID}, doc.ID, "192.0.2.4"))

	trail, err := deps.store.Usages().FileUsageTrail(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.FileUsageAgreeTOS, trail[0].UsageType)
	assert.Equal(t, signer.Username, trail[0].Data["user"])
	assert.Equal(t, "192.0.2.4", trail[0].Data["ip"])

	assert.Equal(t, []string{TaskWebhooksFileUsage}, queue.names())
}
