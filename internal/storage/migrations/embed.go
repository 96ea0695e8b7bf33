// Package migrations carries the tonbuy-alerts schemas: the PostgreSQL
// documents table holding registry, watch, state and cursor documents, and
// the ClickHouse buy_events log behind /stats/buys.
package migrations

import "embed"

// PostgresFS holds postgres/*.sql, applied in name order by ApplyPostgres.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds clickhouse/*.sql, applied by OpenClickhouse.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
