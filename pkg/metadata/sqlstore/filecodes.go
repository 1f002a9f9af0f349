// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

const fileCodeColumns = `id, code, prefix, suffix, stored_ref, size, text_payload,
	expires_at, remaining_uses, unlimited, used_count, owner_id, created_at`

func (s *Store) CreateFileCode(ctx context.Context, fc *types.FileCode) error {
	const insert = `INSERT INTO file_codes
		(code, prefix, suffix, stored_ref, size, text_payload, expires_at,
		 remaining_uses, unlimited, used_count, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	args := []any{
		fc.Code, fc.Prefix, fc.Suffix, fc.StoredRef, fc.Size,
		nullString(fc.Text), nullTime(fc.ExpiresAt),
		fc.RemainingUses, fc.Unlimited, fc.UsedCount, fc.OwnerID, fc.CreatedAt,
	}

	if s.dialect.Name() == "postgres" {
		err := s.queryRow(ctx, insert+" RETURNING id", args...).Scan(&fc.ID)
		if err != nil {
			if IsUniqueViolation(err) {
				return metadata.ErrDuplicateCode
			}
			return fmt.Errorf("insert file code: %w", err)
		}
		return nil
	}

	res, err := s.exec(ctx, insert, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return metadata.ErrDuplicateCode
		}
		return fmt.Errorf("insert file code: %w", err)
	}
	fc.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) GetFileCode(ctx context.Context, code string) (*types.FileCode, error) {
	row := s.queryRow(ctx,
		`SELECT `+fileCodeColumns+` FROM file_codes WHERE code = $1`, code)
	return scanFileCode(row)
}

func (s *Store) DeleteFileCode(ctx context.Context, code string) error {
	res, err := s.exec(ctx, `DELETE FROM file_codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete file code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *Store) ListOwnerFileCodes(ctx context.Context, ownerID string, page, pageSize int) ([]*types.FileCode, int64, error) {
	var total int64
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM file_codes WHERE owner_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count file codes: %w", err)
	}

	rows, err := s.query(ctx,
		`SELECT `+fileCodeColumns+` FROM file_codes
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list file codes: %w", err)
	}
	defer rows.Close()

	var out []*types.FileCode
	for rows.Next() {
		fc, err := scanFileCode(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, fc)
	}
	return out, total, rows.Err()
}

// ConsumeUse is a single conditional UPDATE, so concurrent callers racing
// for a share's last use serialize inside the database and exactly one
// sees a row change.
func (s *Store) ConsumeUse(ctx context.Context, code string, now time.Time) (bool, error) {
	// $1 and $4 are both true. Placeholders must appear in ascending
	// order, and none repeated, so MySQL's positional binding lines up
	// after conversion.
	res, err := s.exec(ctx,
		`UPDATE file_codes
		 SET used_count = used_count + 1,
		     remaining_uses = CASE WHEN unlimited = $1
		                           THEN remaining_uses ELSE remaining_uses - 1 END
		 WHERE code = $2
		   AND (expires_at IS NULL OR expires_at > $3)
		   AND (unlimited = $4 OR remaining_uses > 0)`,
		true, code, now, true)
	if err != nil {
		return false, fmt.Errorf("consume use: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish a spent/expired share from a missing one.
	var exists int
	err = s.queryRow(ctx, `SELECT 1 FROM file_codes WHERE code = $1`, code).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, metadata.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// ============================================================================
// Scan helpers
// ============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileCode(row rowScanner) (*types.FileCode, error) {
	var fc types.FileCode
	var text sql.NullString
	var expires sql.NullTime

	err := row.Scan(&fc.ID, &fc.Code, &fc.Prefix, &fc.Suffix, &fc.StoredRef,
		&fc.Size, &text, &expires, &fc.RemainingUses, &fc.Unlimited,
		&fc.UsedCount, &fc.OwnerID, &fc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file code: %w", err)
	}

	if text.Valid {
		fc.Text = &text.String
	}
	if expires.Valid {
		t := expires.Time
		fc.ExpiresAt = &t
	}
	return &fc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
