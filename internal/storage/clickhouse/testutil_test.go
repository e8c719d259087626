package clickhouse

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runMigrations applies the submission_log schema. Reads the migration
// file when the source tree is reachable, otherwise applies the schema
// inline.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	path := findMigrationsDir() + "/001_submission_log.sql"
	content, err := os.ReadFile(path)
	if err != nil {
		t.Logf("Could not read migration %s: %v, using inline schema", path, err)
		runInlineMigrations(t, conn)
		return
	}

	err = conn.Exec(ctx, string(content))
	require.NoError(t, err, "failed to apply migration 001_submission_log.sql")
}

// findMigrationsDir attempts to locate the clickhouse migrations directory.
func findMigrationsDir() string {
	paths := []string{
		"../migrations/clickhouse",
		"../../storage/migrations/clickhouse",
		"internal/storage/migrations/clickhouse",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return "../migrations/clickhouse"
}

// runInlineMigrations applies the schema directly without reading files.
func runInlineMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submission_log (
			session_id   String,
			step         String,
			attempt      UInt32,
			tx_hash      String,
			fee          UInt32,
			seq_num      Int64,
			outcome      String,
			error_detail String,
			submitted_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (session_id, submitted_at, attempt)
	`)
	require.NoError(t, err)
}
