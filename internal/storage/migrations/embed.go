// Package migrations carries the storage schemas as embedded SQL and
// applies them at startup: deployment sessions in PostgreSQL, the
// submission audit log in ClickHouse.
package migrations

import "embed"

// PostgresFS embeds the deployment-session schema migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the submission-log schema migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
