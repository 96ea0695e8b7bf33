package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	chstore "tonbuy-alerts/internal/storage/clickhouse"
	"tonbuy-alerts/internal/storage/migrations"
)

// newTestConn starts a ClickHouse server and opens the buy log database on it
// the same way the alerter does at startup.
func newTestConn(t *testing.T) *chstore.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.3-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate clickhouse: %v", err)
		}
	})

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	// The database does not exist yet; OpenClickhouse creates it.
	conn, err := migrations.OpenClickhouse(ctx, fmt.Sprintf("clickhouse://%s/tonbuy_test", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
