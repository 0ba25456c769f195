package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsign/quillsign/internal/domain/services"
)

func TestStorageService_RoundTrip(t *testing.T) {
	store, err := NewStorageService(t.TempDir())
	require.NoError(t, err)

	err = store.Upload(context.Background(), "deadbeef", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	content, err := store.Download(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), content)

	require.NoError(t, store.Delete(context.Background(), "deadbeef"))

	_, err = store.Download(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, services.ErrBlobNotFound)
}

func TestStorageService_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewStorageService(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "no-such-blob"))
}
