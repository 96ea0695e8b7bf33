package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T, ttl time.Duration) *SeenCache {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache, err := NewSeenCache(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestSeenCache_MarkAndHas(t *testing.T) {
	cache := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	seen, err := cache.HasSeen(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, "k1"))
	require.NoError(t, cache.MarkSeen(ctx, "k1"))

	seen, err = cache.HasSeen(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err := cache.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSeenCache_Expiry(t *testing.T) {
	cache := setupTestRedis(t, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.MarkSeen(ctx, "short"))
	assert.Eventually(t, func() bool {
		seen, err := cache.HasSeen(ctx, "short")
		return err == nil && !seen
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewSeenCache_BadURL(t *testing.T) {
	_, err := NewSeenCache(context.Background(), "not-a-url", time.Minute)
	assert.Error(t, err)
}
