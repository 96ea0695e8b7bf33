package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	chstore "tonbuy-alerts/internal/storage/clickhouse"
	"tonbuy-alerts/internal/storage/postgres"
)

// ApplyPostgres runs every embedded PostgreSQL file in lexical order.
// Files must be idempotent; they run on each start.
func ApplyPostgres(ctx context.Context, pool *postgres.Pool) error {
	return forEachFile(PostgresFS, "postgres", func(name, body string) error {
		if _, err := pool.Exec(ctx, body); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		return nil
	})
}

// OpenClickhouse creates the DSN's database if needed, applies the embedded
// ClickHouse files and returns a connection bound to that database.
func OpenClickhouse(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	bootstrap, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse server: %w", err)
	}
	createErr := bootstrap.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName)
	if err := errors.Join(createErr, bootstrap.Close()); err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse database: %w", err)
	}

	// The native driver executes one statement per Exec.
	err = forEachFile(ClickhouseFS, "clickhouse", func(name, body string) error {
		stmts, err := splitStatements(body)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func forEachFile(fsys fs.FS, dir string, apply func(name, body string) error) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if err := apply(name, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements drops "--" comment lines and splits on semicolons.
// A semicolon inside a quoted literal is rejected rather than mis-split.
func splitStatements(input string) ([]string, error) {
	var (
		kept    []string
		inQuote bool
	)
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			switch {
			case line[i] == '\'' && i+1 < len(line) && line[i+1] == '\'':
				i++
			case line[i] == '\'':
				inQuote = !inQuote
			case line[i] == ';' && inQuote:
				return nil, errors.New("semicolon inside string literal")
			}
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn missing database")
	}
	for _, r := range db {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("clickhouse database name %q has unsupported characters", db)
		}
	}
	return db, nil
}
