// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReserveUsage adds n bytes to the owner's usage iff the result stays
// within ceiling. The guard lives in the UPDATE's WHERE clause, so
// concurrent reservations cannot jointly overshoot the ceiling.
func (s *Store) ReserveUsage(ctx context.Context, ownerID string, n, ceiling int64) (bool, error) {
	_, err := s.exec(ctx,
		`INSERT `+s.dialect.InsertIgnorePrefix()+`INTO owner_usage (owner_id, used_bytes)
		 VALUES ($1, 0)`+s.dialect.InsertIgnoreSuffix("owner_id"),
		ownerID)
	if err != nil {
		return false, fmt.Errorf("init usage row: %w", err)
	}

	// $1 and $3 are both n.
	res, err := s.exec(ctx,
		`UPDATE owner_usage
		 SET used_bytes = used_bytes + $1
		 WHERE owner_id = $2 AND used_bytes + $3 <= $4`,
		n, ownerID, n, ceiling)
	if err != nil {
		return false, fmt.Errorf("reserve usage: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, ownerID string, n int64) error {
	// Clamp at zero; releasing more than reserved must not go negative.
	_, err := s.exec(ctx,
		`UPDATE owner_usage
		 SET used_bytes = CASE WHEN used_bytes > $1 THEN used_bytes - $2 ELSE 0 END
		 WHERE owner_id = $3`,
		n, n, ownerID)
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, ownerID string) (int64, error) {
	var used int64
	err := s.queryRow(ctx,
		`SELECT used_bytes FROM owner_usage WHERE owner_id = $1`, ownerID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return used, nil
}
