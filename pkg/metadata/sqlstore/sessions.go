// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

const sessionColumns = `upload_id, file_name, file_size, chunk_size,
	total_chunks, content_hash, owner_id, created_at`

func (s *Store) CreateSession(ctx context.Context, sess *types.UploadSession) error {
	_, err := s.exec(ctx,
		`INSERT `+s.dialect.InsertIgnorePrefix()+`INTO upload_sessions
		 (upload_id, file_name, file_size, chunk_size, total_chunks, content_hash, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`+
			s.dialect.InsertIgnoreSuffix("upload_id"),
		sess.UploadID, sess.FileName, sess.FileSize, sess.ChunkSize,
		sess.TotalChunks, sess.ContentHash, sess.OwnerID, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, uploadID string) (*types.UploadSession, error) {
	row := s.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions WHERE upload_id = $1`, uploadID)
	return scanSession(row)
}

func (s *Store) GetSessionByHash(ctx context.Context, ownerID, contentHash string, fileSize int64) (*types.UploadSession, error) {
	row := s.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions
		 WHERE owner_id = $1 AND content_hash = $2 AND file_size = $3
		 ORDER BY created_at DESC LIMIT 1`,
		ownerID, contentHash, fileSize)
	return scanSession(row)
}

func (s *Store) DeleteSession(ctx context.Context, uploadID string) error {
	res, err := s.exec(ctx, `DELETE FROM upload_sessions WHERE upload_id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
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

// ============================================================================
// Chunks
// ============================================================================

// UpsertChunk records a chunk arrival. Retries of the same chunk overwrite
// the previous row, so re-sent chunks stay idempotent.
func (s *Store) UpsertChunk(ctx context.Context, c *types.ChunkRecord) error {
	_, err := s.exec(ctx,
		`INSERT INTO upload_chunks (upload_id, chunk_index, chunk_hash, completed, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`+
			s.dialect.UpsertSuffix("upload_id, chunk_index",
				[]string{"chunk_hash", "completed", "updated_at"}),
		c.UploadID, c.ChunkIndex, c.ChunkHash, c.Completed, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

func (s *Store) CompletedChunkIndexes(ctx context.Context, uploadID string) ([]int64, error) {
	rows, err := s.query(ctx,
		`SELECT chunk_index FROM upload_chunks
		 WHERE upload_id = $1 AND completed = $2
		 ORDER BY chunk_index`,
		uploadID, true)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var indexes []int64
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (s *Store) CompletedChunkCount(ctx context.Context, uploadID string) (int64, error) {
	var n int64
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM upload_chunks WHERE upload_id = $1 AND completed = $2`,
		uploadID, true).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteChunks(ctx context.Context, uploadID string) error {
	_, err := s.exec(ctx, `DELETE FROM upload_chunks WHERE upload_id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func scanSession(row rowScanner) (*types.UploadSession, error) {
	var sess types.UploadSession
	err := row.Scan(&sess.UploadID, &sess.FileName, &sess.FileSize,
		&sess.ChunkSize, &sess.TotalChunks, &sess.ContentHash,
		&sess.OwnerID, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}
