package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

func newSigningService(t *testing.T) (*SigningService, *stubBlobStore, *stubQueue, *testDeps) {
	t.Helper()
	store, db := newTestStore(t)
	blobs := newStubBlobStore()
	queue := &stubQueue{}
	svc := NewSigningService(store, blobs, queue, time.UTC, logger.NewForTesting())
	return svc, blobs, queue, &testDeps{store: store, db: db}
}

func seedEmpty(t *testing.T, deps *testDeps, fields ...*models.Field) {
	t.Helper()
	for _, field := range fields {
		require.NoError(t, deps.store.Usages().AddFieldUsage(context.Background(), &models.FieldUsage{
			FieldID:   field.ID,
			UsageType: models.FieldUsageEmpty,
		}))
	}
}

func TestSigningService_FillText(t *testing.T) {
	svc, _, queue, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	name := deps.db.CreateTestField(t, doc, signer, models.FieldTypeText, "name-1")
	sig := deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "signature-1")
	seedEmpty(t, deps, name, sig)

	require.NoError(t, svc.FillText(ctx, Scope{UserID: signer.ID}, name.ID, "Jane Roe", "192.0.2.1"))

	filled, err := deps.store.Usages().LatestFilledUsages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, "Jane Roe", filled[0].Data["value"])
	assert.Equal(t, "192.0.2.1", filled[0].Data["ip"])

	// One field still unfilled: webhook for the fill plus a re-stamp,
	// no completion marker.
	assert.Equal(t, []string{TaskWebhooksFieldUsage, TaskStampPDF}, queue.names())
}

func TestSigningService_FillSignature_CompletesDocument(t *testing.T) {
	svc, blobs, queue, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	sig := deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "signature-1")
	seedEmpty(t, deps, sig)

	png := []byte("\x89PNG fake")
	require.NoError(t, svc.FillSignature(ctx, Scope{UserID: signer.ID}, sig.ID, png, "192.0.2.1"))

	filled, err := deps.store.Usages().LatestFilledUsages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	require.NotNil(t, filled[0].FileID)

	file, err := deps.store.Files().GetByID(ctx, *filled[0].FileID)
	require.NoError(t, err)
	stored, err := blobs.Download(ctx, file.Filename)
	require.NoError(t, err)
	assert.Equal(t, png, stored)

	// Last field filled: the completion marker is on the trail and its
	// webhook scheduled before the re-stamp.
	trail, err := deps.store.Usages().FileUsageTrail(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.FileUsageAllFieldsFilled, trail[0].UsageType)

	assert.Equal(t, []string{TaskWebhooksFieldUsage, TaskWebhooksFileUsage, TaskStampPDF}, queue.names())
}

func TestSigningService_FillText_DependentCascade(t *testing.T) {
	svc, _, _, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	parent := deps.db.CreateTestField(t, doc, signer, models.FieldTypeText, "name-1")
	child := deps.db.CreateTestField(t, doc, nil, models.FieldTypeDate, "date-1")
	require.NoError(t, deps.db.Model(child).Update("parent_id", parent.ID).Error)
	seedEmpty(t, deps, parent, child)

	require.NoError(t, svc.FillText(ctx, Scope{UserID: signer.ID}, parent.ID, "Jane", "ip"))

	filled, err := deps.store.Usages().LatestFilledUsages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, filled, 2)

	var dateValue string
	for _, usage := range filled {
		if usage.FieldID == child.ID {
			dateValue = usage.Data["value"].(string)
		}
	}
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), dateValue)
}

func TestSigningService_Fill_Authorization(t *testing.T) {
	svc, _, _, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	sig := deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig")

	// Someone else's field reads as missing.
	err := svc.FillText(ctx, Scope{UserID: owner.ID}, sig.ID, "v", "ip")
	assert.ErrorIs(t, err, ErrNotFound)

	// A token scoped to another document is rejected.
	other := uuid.New()
	err = svc.FillText(ctx, Scope{UserID: signer.ID, TargetDocument: &other}, sig.ID, "v", "ip")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSigningService_BulkFill(t *testing.T) {
	svc, _, queue, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	name := deps.db.CreateTestField(t, doc, signer, models.FieldTypeText, "name-1")
	sig := deps.db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "signature-1")
	seedEmpty(t, deps, name, sig)

	entries := []BulkFillEntry{
		{FieldID: name.ID, Value: "Jane Roe"},
		{FieldID: sig.ID, Image: []byte("\x89PNG fake")},
	}
	require.NoError(t, svc.BulkFill(ctx, Scope{UserID: signer.ID}, entries, "ip"))

	filled, err := deps.store.Usages().LatestFilledUsages(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, filled, 2)

	// One re-stamp at the end, after both webhooks plus completion.
	names := queue.names()
	require.NotEmpty(t, names)
	assert.Equal(t, TaskStampPDF, names[len(names)-1])
	assert.Equal(t, 1, countTasks(names, TaskStampPDF))
	assert.Equal(t, 2, countTasks(names, TaskWebhooksFieldUsage))
	assert.Equal(t, 1, countTasks(names, TaskWebhooksFileUsage))
}

func TestSigningService_BulkFill_RollsBackOnBadEntry(t *testing.T) {
	svc, _, queue, deps := newSigningService(t)
	ctx := context.Background()

	business := deps.db.CreateTestBusiness(t)
	owner := deps.db.CreateTestUser(t, business)
	signer := deps.db.CreateTestSigner(t, business)
	doc := deps.db.CreateTestDocument(t, owner)
	name := deps.db.CreateTestField(t, doc, signer, models.FieldTypeText, "name-1")
	seedEmpty(t, deps, name)

	entries := []BulkFillEntry{
		{FieldID: name.ID, Value: "Jane Roe"},
		{FieldID: uuid.New(), Value: "ghost"},
	}
	err := svc.BulkFill(ctx, Scope{UserID: signer.ID}, entries, "ip")
	assert.ErrorIs(t, err, ErrNotFound)

	filled, err := deps.store.Usages().LatestFilledUsages(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, filled)
	assert.Empty(t, queue.names())
}

func countTasks(names []string, name string) int {
	n := 0
	for _, candidate := range names {
		if candidate == name {
			n++
		}
	}
	return n
}
