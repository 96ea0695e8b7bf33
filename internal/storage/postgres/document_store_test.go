package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/storage"
	"tonbuy-alerts/internal/storage/postgres"
)

type registryDoc struct {
	Pairs map[string]string `json:"pairs"`
}

func TestDocumentStore_LoadMissing(t *testing.T) {
	pool := newTestPool(t)

	store := postgres.NewDocumentStore(pool)

	var got registryDoc
	err := store.Load(context.Background(), "registry", &got)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentStore_SaveReplaces(t *testing.T) {
	pool := newTestPool(t)

	store := postgres.NewDocumentStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "registry", registryDoc{Pairs: map[string]string{"EQ1": "AAA"}}))
	require.NoError(t, store.Save(ctx, "registry", registryDoc{Pairs: map[string]string{"EQ2": "BBB"}}))

	var got registryDoc
	require.NoError(t, store.Load(ctx, "registry", &got))
	assert.Equal(t, map[string]string{"EQ2": "BBB"}, got.Pairs)

	var revision int64
	err := pool.QueryRow(ctx, `SELECT revision FROM documents WHERE namespace = 'registry'`).Scan(&revision)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revision)
}

func TestDocumentStore_InvalidNamespace(t *testing.T) {
	pool := newTestPool(t)

	err := postgres.NewDocumentStore(pool).Save(context.Background(), "Bad Name", registryDoc{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
