package postgresql

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/internal/infrastructure/repositories/postgresql/testutil"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	business := db.CreateTestBusiness(t)

	hash := "$2a$10$somehash"
	user := &models.User{
		BusinessID:   business.ID,
		Username:     "alice@example.com",
		PasswordHash: &hash,
	}

	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, user.ID)

	got, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Username)
	require.NotNil(t, got.PasswordHash)
	assert.Equal(t, hash, *got.PasswordHash)

	got, err = repo.GetByUsername(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	business := db.CreateTestBusiness(t)

	first := &models.User{BusinessID: business.ID, Username: "dup@example.com"}
	require.NoError(t, repo.Create(context.Background(), first))

	second := &models.User{BusinessID: business.ID, Username: "dup@example.com"}
	err := repo.Create(context.Background(), second)
	assert.Error(t, err)
}

func TestUserRepository_Update(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	business := db.CreateTestBusiness(t)
	user := db.CreateTestSigner(t, business)

	require.Nil(t, user.PasswordHash)

	hash := "$2a$10$newhash"
	user.PasswordHash = &hash
	user.Deleted = true
	require.NoError(t, repo.Update(context.Background(), user))

	got, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	require.NotNil(t, got.PasswordHash)
	assert.Equal(t, hash, *got.PasswordHash)
}

func TestBusinessRepository_Configs(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewBusinessRepository(db.DB)
	business := db.CreateTestBusiness(t)

	err := repo.AddConfig(context.Background(), &models.BusinessConfig{
		BusinessID: business.ID,
		Key:        "webhook",
		Values:     models.JSONB{"url": "https://example.com/hook-a"},
	})
	require.NoError(t, err)
	err = repo.AddConfig(context.Background(), &models.BusinessConfig{
		BusinessID: business.ID,
		Key:        "webhook",
		Values:     models.JSONB{"url": "https://example.com/hook-b"},
	})
	require.NoError(t, err)

	hooks, err := repo.GetConfigs(context.Background(), business.ID, "webhook")
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "https://example.com/hook-a", hooks[0].Values["url"])

	templates, err := repo.GetConfigs(context.Background(), business.ID, "email-template")
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestAccessURIRepository_RevokeAllForUser(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewAccessURIRepository(db.DB)
	business := db.CreateTestBusiness(t)
	owner := db.CreateTestUser(t, business)
	signer := db.CreateTestSigner(t, business)
	doc := db.CreateTestDocument(t, owner)

	uri := &models.AccessURI{
		URI:        "dGVzdC1hY2Nlc3MtdXJp",
		UserID:     signer.ID,
		DocumentID: doc.ID,
	}
	require.NoError(t, repo.Create(context.Background(), uri))

	got, err := repo.GetByURI(context.Background(), uri.URI)
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	require.NoError(t, repo.RevokeAllForUser(context.Background(), signer.ID))

	got, err = repo.GetByURI(context.Background(), uri.URI)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}
