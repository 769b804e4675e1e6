package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/weekend-academy-api/pkg/config"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newStorage(t *testing.T, maxSize int64) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(config.UploadsConfig{
		StorageDir:       t.TempDir(),
		BaseURL:          "/uploads/",
		MaxFileSizeBytes: maxSize,
		AllowedMIMEs:     []string{"image/png", "application/pdf"},
	})
	require.NoError(t, err)
	return store
}

func TestLocalStoragePutWritesFile(t *testing.T) {
	store := newStorage(t, 1024)

	url, err := store.Put(context.Background(), "receipts", pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/receipts/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	rel := strings.TrimPrefix(url, "/uploads/")
	data, err := os.ReadFile(filepath.Join(store.Dir(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestLocalStoragePutRejectsUnknownType(t *testing.T) {
	store := newStorage(t, 1024)

	_, err := store.Put(context.Background(), "receipts", []byte("plain text body"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedMedia.Code, appErrors.FromError(err).Code)
}

func TestLocalStoragePutRejectsOversize(t *testing.T) {
	store := newStorage(t, 4)

	_, err := store.Put(context.Background(), "photos", pngHeader)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, appErrors.FromError(err).Code)
}

func TestSanitizeFolder(t *testing.T) {
	assert.Equal(t, "misc", sanitizeFolder(""))
	assert.Equal(t, "etc", sanitizeFolder("../../etc"))
	assert.Equal(t, "photos/2026", sanitizeFolder("/photos/2026/"))
}
