package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/pdf-rag/internal/core/collection"
)

func TestOriginalsLifecycle(t *testing.T) {
	base := t.TempDir()
	store, err := NewOriginals(base)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Path(ctx, "manual")
	require.NoError(t, err)
	assert.True(t, path.IsAbsent())

	require.NoError(t, store.Store(ctx, "manual", []byte("v1")))
	require.NoError(t, store.Store(ctx, "manual", []byte("v2")))

	path, err = store.Path(ctx, "manual")
	require.NoError(t, err)
	p, ok := path.Get()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(base, DirName, "manual.pdf"), p)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")

	removed, err := store.Delete(ctx, "manual")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "manual")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestOriginalsRejectsInvalidNames(t *testing.T) {
	store, err := NewOriginals(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../escape", "ab", "x/y/z"} {
		err := store.Store(context.Background(), name, []byte("data"))
		assert.ErrorIs(t, err, collection.ErrInvalidName, name)
	}
}

func TestNewOriginalsRequiresBaseDir(t *testing.T) {
	_, err := NewOriginals("")
	assert.Error(t, err)
}
