// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store is a dialect-aware SQL metadata.Store backed by PostgreSQL or
// MySQL through database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ metadata.Store = (*Store)(nil)

// Open opens a database connection, configures the pool, runs the schema
// migration, and returns a ready Store.
func Open(cfg types.DBConfig) (*Store, error) {
	dialect, err := ForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the dialect used by this store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// Query helpers
// ============================================================================

// Queries are written with PostgreSQL-style placeholders ($1, $2, ...)
// and converted to the dialect's format at execution time.

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.ReplacePlaceholders(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.ReplacePlaceholders(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.ReplacePlaceholders(query), args...)
}

// ============================================================================
// Schema
// ============================================================================

func (s *Store) migrate(ctx context.Context) error {
	d := s.dialect
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS file_codes (
			id %s,
			code VARCHAR(64) NOT NULL,
			prefix VARCHAR(255) NOT NULL DEFAULT '',
			suffix VARCHAR(64) NOT NULL DEFAULT '',
			stored_ref VARCHAR(512) NOT NULL DEFAULT '',
			size BIGINT NOT NULL DEFAULT 0,
			text_payload TEXT,
			expires_at %s NULL,
			remaining_uses BIGINT NOT NULL DEFAULT 0,
			unlimited %s NOT NULL DEFAULT %s,
			used_count BIGINT NOT NULL DEFAULT 0,
			owner_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at %s NOT NULL,
			CONSTRAINT uq_file_codes_code UNIQUE (code)
		)`, d.AutoIncrementPK(), d.TimeType(), d.BoolType(), boolDefault(d, false), d.TimeType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS upload_sessions (
			upload_id VARCHAR(64) PRIMARY KEY,
			file_name VARCHAR(512) NOT NULL,
			file_size BIGINT NOT NULL,
			chunk_size BIGINT NOT NULL,
			total_chunks BIGINT NOT NULL,
			content_hash VARCHAR(128) NOT NULL DEFAULT '',
			owner_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, d.TimeType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS upload_chunks (
			upload_id VARCHAR(64) NOT NULL,
			chunk_index BIGINT NOT NULL,
			chunk_hash VARCHAR(128) NOT NULL DEFAULT '',
			completed %s NOT NULL DEFAULT %s,
			updated_at %s NOT NULL,
			PRIMARY KEY (upload_id, chunk_index)
		)`, d.BoolType(), boolDefault(d, false), d.TimeType()),

		`CREATE TABLE IF NOT EXISTS owner_usage (
			owner_id VARCHAR(255) PRIMARY KEY,
			used_bytes BIGINT NOT NULL DEFAULT 0
		)`,

	}

	// MySQL has no IF NOT EXISTS for indexes; a duplicate index error
	// there means the index is already in place.
	indexes := []string{
		`idx_file_codes_owner ON file_codes (owner_id, created_at)`,
		`idx_sessions_hash ON upload_sessions (owner_id, content_hash, file_size)`,
	}
	for _, idx := range indexes {
		if d.Name() == "mysql" {
			stmts = append(stmts, "CREATE INDEX "+idx)
		} else {
			stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+idx)
		}
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func boolDefault(d Dialect, b bool) string {
	if d.Name() == "mysql" {
		if b {
			return "1"
		}
		return "0"
	}
	if b {
		return "TRUE"
	}
	return "FALSE"
}
