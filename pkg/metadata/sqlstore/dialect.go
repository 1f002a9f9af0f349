// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore provides a dialect-aware SQL metadata store.
// It abstracts the differences between PostgreSQL and MySQL, allowing a
// single implementation to support both databases.
package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect abstracts database-specific SQL syntax differences.
type Dialect interface {
	// Name returns the dialect name (e.g., "postgres", "mysql").
	Name() string

	// DriverName returns the database/sql driver to open.
	DriverName() string

	// ReplacePlaceholders converts PostgreSQL-style placeholders ($1, $2, ...)
	// to the dialect's format. Queries are written once in PostgreSQL
	// syntax and converted at runtime.
	ReplacePlaceholders(query string) string

	// AutoIncrementPK returns the column definition for an
	// auto-incrementing BIGINT primary key.
	AutoIncrementPK() string

	// BoolType returns the column type for booleans.
	BoolType() string

	// TimeType returns the column type for timestamps.
	TimeType() string

	// InsertIgnorePrefix returns the prefix for INSERT statements that should ignore duplicates.
	// PostgreSQL: "" (uses ON CONFLICT suffix instead)
	// MySQL: "IGNORE "
	InsertIgnorePrefix() string

	// InsertIgnoreSuffix returns the suffix for INSERT statements that should ignore duplicates.
	// PostgreSQL: "ON CONFLICT (conflict_column) DO NOTHING"
	// MySQL: "" (uses INSERT IGNORE prefix instead)
	InsertIgnoreSuffix(conflictColumn string) string

	// UpsertSuffix returns the suffix for INSERT statements that should update on conflict.
	// PostgreSQL: "ON CONFLICT (conflict_columns) DO UPDATE SET col1 = EXCLUDED.col1, ..."
	// MySQL: "ON DUPLICATE KEY UPDATE col1 = VALUES(col1), ..."
	UpsertSuffix(conflictColumns string, updateColumns []string) string
}

// ForDriver returns the dialect for a config driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return PostgresDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown sql driver: %s", driver)
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation
// in either dialect.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// isDuplicateIndex reports whether err is MySQL's duplicate key name
// error (1061), raised when re-creating an existing index.
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}

// ============================================================================
// PostgreSQL Dialect
// ============================================================================

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (d PostgresDialect) Name() string {
	return "postgres"
}

func (d PostgresDialect) DriverName() string {
	return "pgx"
}

func (d PostgresDialect) ReplacePlaceholders(query string) string {
	// PostgreSQL uses $1, $2, etc. - no conversion needed
	return query
}

func (d PostgresDialect) AutoIncrementPK() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (d PostgresDialect) BoolType() string {
	return "BOOLEAN"
}

func (d PostgresDialect) TimeType() string {
	return "TIMESTAMPTZ"
}

func (d PostgresDialect) InsertIgnorePrefix() string {
	return ""
}

func (d PostgresDialect) InsertIgnoreSuffix(conflictColumn string) string {
	return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflictColumn)
}

func (d PostgresDialect) UpsertSuffix(conflictColumns string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		return ""
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflictColumns, strings.Join(updates, ", "))
}

// ============================================================================
// MySQL Dialect
// ============================================================================

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

func (d MySQLDialect) Name() string {
	return "mysql"
}

func (d MySQLDialect) DriverName() string {
	return "mysql"
}

func (d MySQLDialect) ReplacePlaceholders(query string) string {
	// Replace $1, $2, etc. with ?. MySQL binds ? positionally, so every
	// query in this package numbers its placeholders in ascending order
	// of appearance and never repeats one.
	//
	// IMPORTANT: Replace from highest to lowest so $12 is replaced before $1.
	result := query
	for i := 50; i >= 1; i-- {
		old := fmt.Sprintf("$%d", i)
		result = strings.ReplaceAll(result, old, "?")
	}
	return result
}

func (d MySQLDialect) AutoIncrementPK() string {
	return "BIGINT AUTO_INCREMENT PRIMARY KEY"
}

func (d MySQLDialect) BoolType() string {
	return "TINYINT(1)"
}

func (d MySQLDialect) TimeType() string {
	return "DATETIME(6)"
}

func (d MySQLDialect) InsertIgnorePrefix() string {
	return "IGNORE "
}

func (d MySQLDialect) InsertIgnoreSuffix(conflictColumn string) string {
	return ""
}

func (d MySQLDialect) UpsertSuffix(conflictColumns string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		return ""
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}
