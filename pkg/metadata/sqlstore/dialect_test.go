// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDriver(t *testing.T) {
	d, err := ForDriver("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
	assert.Equal(t, "pgx", d.DriverName())

	d, err = ForDriver("pgx")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = ForDriver("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())
	assert.Equal(t, "mysql", d.DriverName())

	_, err = ForDriver("sqlite")
	require.Error(t, err)
}

func TestPostgresDialect_ReplacePlaceholders(t *testing.T) {
	d := PostgresDialect{}

	// PostgreSQL dialect should not change placeholders
	query := "SELECT * FROM file_codes WHERE code = $1 AND owner_id = $2"
	assert.Equal(t, query, d.ReplacePlaceholders(query))
}

func TestPostgresDialect_InsertIgnore(t *testing.T) {
	d := PostgresDialect{}

	assert.Equal(t, "", d.InsertIgnorePrefix())
	assert.Equal(t, " ON CONFLICT (owner_id) DO NOTHING", d.InsertIgnoreSuffix("owner_id"))
}

func TestPostgresDialect_UpsertSuffix(t *testing.T) {
	d := PostgresDialect{}

	assert.Equal(t, "", d.UpsertSuffix("upload_id, chunk_index", nil))
	assert.Equal(t,
		" ON CONFLICT (upload_id, chunk_index) DO UPDATE SET chunk_hash = EXCLUDED.chunk_hash, completed = EXCLUDED.completed",
		d.UpsertSuffix("upload_id, chunk_index", []string{"chunk_hash", "completed"}))
}

func TestMySQLDialect_ReplacePlaceholders(t *testing.T) {
	d := MySQLDialect{}

	assert.Equal(t,
		"SELECT * FROM file_codes WHERE code = ? AND owner_id = ?",
		d.ReplacePlaceholders("SELECT * FROM file_codes WHERE code = $1 AND owner_id = $2"))

	// $12 must not become ?2.
	assert.Equal(t,
		"INSERT INTO t VALUES (?, ?)",
		d.ReplacePlaceholders("INSERT INTO t VALUES ($1, $12)"))
}

func TestMySQLDialect_InsertIgnore(t *testing.T) {
	d := MySQLDialect{}

	assert.Equal(t, "IGNORE ", d.InsertIgnorePrefix())
	assert.Equal(t, "", d.InsertIgnoreSuffix("owner_id"))
}

func TestMySQLDialect_UpsertSuffix(t *testing.T) {
	d := MySQLDialect{}

	assert.Equal(t,
		" ON DUPLICATE KEY UPDATE chunk_hash = VALUES(chunk_hash), completed = VALUES(completed)",
		d.UpsertSuffix("upload_id, chunk_index", []string{"chunk_hash", "completed"}))
}

func TestDialect_ColumnTypes(t *testing.T) {
	pg := PostgresDialect{}
	my := MySQLDialect{}

	assert.Equal(t, "BIGSERIAL PRIMARY KEY", pg.AutoIncrementPK())
	assert.Equal(t, "BIGINT AUTO_INCREMENT PRIMARY KEY", my.AutoIncrementPK())
	assert.Equal(t, "BOOLEAN", pg.BoolType())
	assert.Equal(t, "TINYINT(1)", my.BoolType())
}
