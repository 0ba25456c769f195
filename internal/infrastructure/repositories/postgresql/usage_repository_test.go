package postgresql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/internal/infrastructure/repositories/postgresql/testutil"
)

func TestUsageRepository_LatestAndSourceDocumentFile(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUsageRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	doc := db.CreateTestDocument(t, owner)

	created := db.CreateTestFile(t)
	stamped := db.CreateTestFile(t)

	require.NoError(t, repo.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		FileID:     &created.ID,
		UsageType:  models.FileUsageCreated,
	}))
	require.NoError(t, repo.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		UsageType:  models.FileUsageStartStamp,
	}))
	require.NoError(t, repo.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		FileID:     &stamped.ID,
		UsageType:  models.FileUsageEndStamp,
	}))

	latest, err := repo.LatestDocumentFile(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, stamped.ID, latest.ID)

	// The stamper must start from the unstamped revision, not its own
	// previous output.
	source, err := repo.SourceDocumentFile(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, source.ID)
}

func TestUsageRepository_LatestDocumentFile_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUsageRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	doc := db.CreateTestDocument(t, owner)

	_, err := repo.LatestDocumentFile(context.Background(), doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUsageRepository_DescribeFields_OldestRowWins(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUsageRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	doc := db.CreateTestDocument(t, owner)

	_, err := repo.DescribeFields(context.Background(), doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, repo.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		UsageType:  models.FileUsageDescribeFields,
		Data:       models.JSONB{"sig-1": map[string]interface{}{"page": float64(1)}},
	}))
	require.NoError(t, repo.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		UsageType:  models.FileUsageDescribeFields,
		Data:       models.JSONB{"sig-1": map[string]interface{}{"page": float64(2)}},
	}))

	data, err := repo.DescribeFields(context.Background(), doc.ID)
	require.NoError(t, err)
	geo, ok := data["sig-1"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), geo["page"])
}

func TestUsageRepository_FilledProjections(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUsageRepository(db.DB)
	fields := NewFieldRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	signer := db.CreateTestSigner(t, business)
	doc := db.CreateTestDocument(t, owner)

	sig := db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig-1")
	txt := db.CreateTestField(t, doc, signer, models.FieldTypeText, "txt-1")

	// Seed both fields empty, then fill sig-1 twice.
	for _, f := range []*models.Field{sig, txt} {
		require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
			FieldID:   f.ID,
			UsageType: models.FieldUsageEmpty,
		}))
	}
	firstBlob := db.CreateTestFile(t)
	secondBlob := db.CreateTestFile(t)
	require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   sig.ID,
		FileID:    &firstBlob.ID,
		UsageType: models.FieldUsageFilled,
	}))
	require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   sig.ID,
		FileID:    &secondBlob.ID,
		UsageType: models.FieldUsageFilled,
	}))

	unfilled, err := repo.HasUnfilledUserFields(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, unfilled)

	names, err := repo.UnfilledFieldNames(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"txt-1"}, names)

	filled, err := repo.LatestFilledUsages(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, sig.ID, filled[0].FieldID)
	require.NotNil(t, filled[0].FileID)
	assert.Equal(t, secondBlob.ID, *filled[0].FileID)

	pending, err := fields.UnfilledSigners(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, signer.ID, pending[0].ID)

	// Filling the last field completes the document.
	require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   txt.ID,
		UsageType: models.FieldUsageFilled,
		Data:      models.JSONB{"value": "hello"},
	}))

	unfilled, err = repo.HasUnfilledUserFields(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, unfilled)

	pending, err = fields.UnfilledSigners(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUsageRepository_UserFieldStatuses(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUsageRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	signer := db.CreateTestSigner(t, business)
	doc := db.CreateTestDocument(t, owner)
	field := db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig-1")

	require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   field.ID,
		UsageType: models.FieldUsageEmpty,
	}))
	require.NoError(t, repo.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   field.ID,
		UsageType: models.FieldUsageFilled,
	}))

	statuses, err := repo.UserFieldStatuses(context.Background(), signer.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, field.ID, statuses[0].FieldID)
	assert.Equal(t, models.FieldUsageFilled, statuses[0].Status)
	assert.Equal(t, doc.Title, statuses[0].Title)
}

func TestDocumentRepository_DeleteCascade(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	docs := NewDocumentRepository(db.DB)
	usages := NewUsageRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	signer := db.CreateTestSigner(t, business)
	doc := db.CreateTestDocument(t, owner)
	field := db.CreateTestField(t, doc, signer, models.FieldTypeSignature, "sig-1")

	source := db.CreateTestFile(t)
	sigBlob := db.CreateTestFile(t)
	pageBlob := db.CreateTestFile(t)

	require.NoError(t, usages.AddFileUsage(context.Background(), &models.FileUsage{
		DocumentID: doc.ID,
		FileID:     &source.ID,
		UsageType:  models.FileUsageCreated,
	}))
	require.NoError(t, usages.AddFieldUsage(context.Background(), &models.FieldUsage{
		FieldID:   field.ID,
		FileID:    &sigBlob.ID,
		UsageType: models.FieldUsageFilled,
	}))
	require.NoError(t, db.Create(&models.RenderedPage{
		DocumentID: doc.ID,
		FileID:     pageBlob.ID,
		Page:       0,
	}).Error)
	require.NoError(t, db.Create(&models.AccessURI{
		URI:        "Y2FzY2FkZS10ZXN0",
		UserID:     signer.ID,
		DocumentID: doc.ID,
	}).Error)

	blobs, err := docs.DeleteCascade(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{source.Filename, sigBlob.Filename, pageBlob.Filename}, blobs)

	_, err = docs.GetByID(context.Background(), doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Field{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.AccessURI{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.File{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = docs.DeleteCascade(context.Background(), doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
