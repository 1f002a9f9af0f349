// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk manages chunked upload sessions from initiation through
// merge. A session has no stored state machine; its progress is derived
// from the chunk rows, so a crashed client can resume by re-sending any
// chunk and a failed merge leaves the session intact for retry.
package chunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/code"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/quota"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

// Manager coordinates chunked uploads across the metadata store, the
// storage backend, the quota guard, and the code engine.
type Manager struct {
	store   metadata.Store
	backend types.BackendStorage
	quota   *quota.Guard
	engine  *code.Engine

	maxUploadBytes   int64
	defaultChunkSize int64
}

// NewManager creates a Manager.
func NewManager(store metadata.Store, backend types.BackendStorage, guard *quota.Guard, engine *code.Engine, cfg types.Config) *Manager {
	return &Manager{
		store:            store,
		backend:          backend,
		quota:            guard,
		engine:           engine,
		maxUploadBytes:   cfg.MaxUploadBytes,
		defaultChunkSize: cfg.DefaultChunkSize,
	}
}

// InitRequest describes a session initiation.
type InitRequest struct {
	FileName    string
	FileSize    int64
	ChunkSize   int64
	ContentHash string
	OwnerID     string
}

// InitResult is the response to an initiation. For a resumed session
// UploadedChunks lists the chunk indexes already received, so the client
// skips them.
type InitResult struct {
	Session        *types.UploadSession
	UploadedChunks []int64
	Resumed        bool
}

// InitSession starts a new upload session, or resumes an existing one
// when the same owner re-initiates with an identical hash and size.
func (m *Manager) InitSession(ctx context.Context, req InitRequest) (*InitResult, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, apierr.Validation("file name is required")
	}
	if req.FileSize <= 0 {
		return nil, apierr.Validation("file size must be positive, got %d", req.FileSize)
	}
	if req.FileSize > m.maxUploadBytes {
		return nil, apierr.SizeLimit(m.maxUploadBytes)
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = m.defaultChunkSize
	}

	// Resume: an interrupted upload re-initiated by the same owner with
	// the same content hash and size picks up its existing session.
	// Anonymous inits never resume: the hash is client-declared, and
	// matching on it would hand one client another's upload ID.
	if req.ContentHash != "" && req.OwnerID != "" {
		existing, err := m.store.GetSessionByHash(ctx, req.OwnerID, req.ContentHash, req.FileSize)
		if err == nil {
			uploaded, err := m.store.CompletedChunkIndexes(ctx, existing.UploadID)
			if err != nil {
				return nil, err
			}
			return &InitResult{Session: existing, UploadedChunks: uploaded, Resumed: true}, nil
		}
		if !errors.Is(err, metadata.ErrNotFound) {
			return nil, err
		}
	}

	// Reserve quota for the whole file up front. Anonymous sessions are
	// reserved at completion instead, once the owner is known.
	if err := m.quota.Reserve(ctx, req.OwnerID, req.FileSize); err != nil {
		return nil, err
	}

	sess := &types.UploadSession{
		UploadID:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		ChunkSize:   chunkSize,
		TotalChunks: (req.FileSize + chunkSize - 1) / chunkSize,
		ContentHash: req.ContentHash,
		OwnerID:     req.OwnerID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		m.quota.Release(ctx, req.OwnerID, req.FileSize)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("upload_id", sess.UploadID).
		Str("file_name", sess.FileName).
		Int64("total_chunks", sess.TotalChunks).
		Msg("upload session initiated")

	return &InitResult{Session: sess}, nil
}

// PutChunk stores one chunk. Chunks may arrive in any order and be
// re-sent; bytes hit the backend before the chunk row is written, so a
// recorded chunk always has its data in place.
func (m *Manager) PutChunk(ctx context.Context, uploadID string, index int64, data io.Reader) (*types.ChunkRecord, error) {
	sess, err := m.store.GetSession(ctx, uploadID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, apierr.SessionNotFound(uploadID)
		}
		return nil, err
	}

	if index < 0 || index >= sess.TotalChunks {
		return nil, apierr.Validation("chunk index %d out of range [0, %d)", index, sess.TotalChunks)
	}

	buf := utils.SyncPoolGetBuffer()
	defer utils.SyncPoolPutBuffer(buf)

	// Cap the read one past the chunk size so oversized chunks are
	// detected instead of silently truncated.
	hash, n, err := utils.Sha256Reader(buf, io.LimitReader(data, sess.ChunkSize+1))
	if err != nil {
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	if n > sess.ChunkSize {
		return nil, apierr.Validation("chunk exceeds declared chunk size of %d bytes", sess.ChunkSize)
	}
	if n == 0 {
		return nil, apierr.Validation("chunk is empty")
	}

	if err := m.backend.WriteChunk(ctx, uploadID, index, bytes.NewReader(buf.Bytes()), n); err != nil {
		return nil, fmt.Errorf("store chunk: %w", err)
	}

	rec := &types.ChunkRecord{
		UploadID:   uploadID,
		ChunkIndex: index,
		ChunkHash:  hash,
		Completed:  true,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := m.store.UpsertChunk(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteRequest carries the expiry policy and the requester identity
// for session completion.
type CompleteRequest struct {
	ExpireStyle types.ExpireStyle
	ExpireValue int64
	OwnerID     string
}

// CompleteSession merges the chunks into a finished share and mints its
// retrieval code. The session survives a failed merge; only a fully
// successful completion tears it down.
func (m *Manager) CompleteSession(ctx context.Context, uploadID string, req CompleteRequest) (*types.FileCode, error) {
	sess, err := m.store.GetSession(ctx, uploadID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, apierr.SessionNotFound(uploadID)
		}
		return nil, err
	}

	// The session's owner wins; the request identity only covers
	// sessions initiated anonymously.
	owner := sess.OwnerID
	if owner == "" {
		owner = req.OwnerID
	}

	count, err := m.store.CompletedChunkCount(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if count != sess.TotalChunks {
		return nil, apierr.IncompleteUpload(count, sess.TotalChunks)
	}

	now := time.Now().UTC()
	expiresAt, remainingUses, unlimited, err := code.ComputeExpiry(req.ExpireStyle, req.ExpireValue, now)
	if err != nil {
		return nil, err
	}

	// An anonymous session completed by an authenticated owner is
	// quota-charged here, the first point the owner is known.
	lateReservation := sess.OwnerID == "" && owner != ""
	if lateReservation {
		if err := m.quota.Reserve(ctx, owner, sess.FileSize); err != nil {
			return nil, err
		}
	}

	prefix, suffix := utils.SplitName(sess.FileName)
	destKey := utils.StoredKey(now, suffix)

	if err := m.backend.MergeChunks(ctx, uploadID, sess.TotalChunks, destKey); err != nil {
		if lateReservation {
			m.quota.Release(ctx, owner, sess.FileSize)
		}
		logger.Ctx(ctx).Error().Err(err).
			Str("upload_id", uploadID).
			Msg("chunk merge failed, session kept for retry")
		return nil, apierr.MergeFailed(err)
	}

	fc := &types.FileCode{
		Prefix:        prefix,
		Suffix:        suffix,
		StoredRef:     destKey,
		Size:          sess.FileSize,
		ExpiresAt:     expiresAt,
		RemainingUses: remainingUses,
		Unlimited:     unlimited,
		OwnerID:       owner,
		CreatedAt:     now,
	}
	if err := m.engine.Mint(ctx, fc); err != nil {
		// The merged object is already at destKey; drop it so a retried
		// completion starts clean.
		if delErr := m.backend.Delete(ctx, destKey); delErr != nil {
			logger.Ctx(ctx).Error().Err(delErr).Str("key", destKey).Msg("failed to remove orphaned merge output")
		}
		if lateReservation {
			m.quota.Release(ctx, owner, sess.FileSize)
		}
		return nil, err
	}

	m.teardown(ctx, uploadID)

	logger.Ctx(ctx).Info().
		Str("upload_id", uploadID).
		Str("code", fc.Code).
		Int64("size", fc.Size).
		Msg("upload session completed")

	return fc, nil
}

// AbortSession discards a session, its chunks, and its quota reservation.
func (m *Manager) AbortSession(ctx context.Context, uploadID string) error {
	sess, err := m.store.GetSession(ctx, uploadID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return apierr.SessionNotFound(uploadID)
		}
		return err
	}

	m.quota.Release(ctx, sess.OwnerID, sess.FileSize)
	m.teardown(ctx, uploadID)
	return nil
}

// teardown removes session state. Failures are logged, not returned; the
// share itself is already durable and stale rows are harmless.
func (m *Manager) teardown(ctx context.Context, uploadID string) {
	if err := m.store.DeleteChunks(ctx, uploadID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to delete chunk rows")
	}
	if err := m.store.DeleteSession(ctx, uploadID); err != nil && !errors.Is(err, metadata.ErrNotFound) {
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to delete session row")
	}
	if err := m.backend.PurgeChunks(ctx, uploadID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to purge staged chunks")
	}
}
