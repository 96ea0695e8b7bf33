package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/storage"
)

type doc struct {
	Cursors map[string]uint64 `json:"cursors"`
}

func TestDocumentStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDocumentStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	var got doc
	err = store.Load(ctx, "cursors", &got)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, "cursors", doc{Cursors: map[string]uint64{"dedust:EQ1": 42}}))
	require.NoError(t, store.Load(ctx, "cursors", &got))
	assert.Equal(t, uint64(42), got.Cursors["dedust:EQ1"])

	require.NoError(t, store.Save(ctx, "cursors", doc{Cursors: map[string]uint64{"dedust:EQ1": 43}}))
	require.NoError(t, store.Load(ctx, "cursors", &got))
	assert.Equal(t, uint64(43), got.Cursors["dedust:EQ1"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "cursors.json", entries[0].Name())
}

func TestDocumentStore_InvalidNamespace(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save(context.Background(), "../escape", doc{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDocumentStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDocumentStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "registry.json"), []byte("{not json"), 0o644))

	var got doc
	err = store.Load(context.Background(), "registry", &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
