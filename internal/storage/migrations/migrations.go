package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	chstore "rabbit-quant/internal/storage/clickhouse"
	"rabbit-quant/internal/storage/postgres"
)

// Postgres applies the embedded PostgreSQL schema in lexical file order.
// Every file is idempotent, so re-running is safe.
func Postgres(ctx context.Context, pool *postgres.Pool, logger *zap.Logger) error {
	return apply(ctx, postgresFS, "postgres", logger, func(ctx context.Context, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	}, false)
}

// ClickHouse creates the DSN's database when missing, applies the embedded
// schema and returns a connection to that database.
func ClickHouse(ctx context.Context, dsn string, logger *zap.Logger) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	createErr := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName)
	closeErr := admin.Close()
	if createErr != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, createErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close admin connection: %w", closeErr)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	// The native protocol rejects multi-statement Exec.
	err = apply(ctx, clickhouseFS, "clickhouse", logger, func(ctx context.Context, stmt string) error {
		return conn.Exec(ctx, stmt)
	}, true)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

type execFunc func(ctx context.Context, stmt string) error

func apply(ctx context.Context, fsys fs.FS, dir string, logger *zap.Logger, exec execFunc, split bool) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := sqlFiles(fsys, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}

		stmts := []string{body}
		if split {
			if err := validateNoSemicolonInStrings(body); err != nil {
				return fmt.Errorf("validate migration %s: %w", file, err)
			}
			stmts = splitStatements(body)
		}
		for _, stmt := range stmts {
			if err := exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		logger.Info("migration applied", zap.String("database", dir), zap.String("file", file))
	}
	return nil
}

func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits on semicolons after dropping blank and "--" lines.
// Migrations must not put semicolons inside string literals or comments;
// validateNoSemicolonInStrings enforces the former.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
