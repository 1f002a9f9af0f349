// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadata defines the persistence interface for share records,
// upload sessions, chunk bookkeeping, and per-owner storage usage.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCode is returned when inserting a share whose code is
	// already taken. Code generation retries on it.
	ErrDuplicateCode = errors.New("code already exists")
)

// Store is the metadata persistence interface. Implementations must make
// ConsumeUse and ReserveUsage atomic under concurrent callers; everything
// the service guarantees about exactly-once downloads and quota ceilings
// rests on those two methods.
type Store interface {
	// File codes.
	CreateFileCode(ctx context.Context, fc *types.FileCode) error
	GetFileCode(ctx context.Context, code string) (*types.FileCode, error)
	DeleteFileCode(ctx context.Context, code string) error
	ListOwnerFileCodes(ctx context.Context, ownerID string, page, pageSize int) ([]*types.FileCode, int64, error)

	// ConsumeUse burns one use of a count-limited share. It succeeds only
	// while the share is unexpired and has uses left, so for a share with
	// one remaining use exactly one concurrent caller sees ok=true.
	// Unlimited shares always succeed and only bump the use counter.
	ConsumeUse(ctx context.Context, code string, now time.Time) (bool, error)

	// Upload sessions.
	CreateSession(ctx context.Context, s *types.UploadSession) error
	GetSession(ctx context.Context, uploadID string) (*types.UploadSession, error)
	GetSessionByHash(ctx context.Context, ownerID, contentHash string, fileSize int64) (*types.UploadSession, error)
	DeleteSession(ctx context.Context, uploadID string) error

	// Chunk bookkeeping. UpsertChunk is idempotent per (uploadID, index).
	UpsertChunk(ctx context.Context, c *types.ChunkRecord) error
	CompletedChunkIndexes(ctx context.Context, uploadID string) ([]int64, error)
	CompletedChunkCount(ctx context.Context, uploadID string) (int64, error)
	DeleteChunks(ctx context.Context, uploadID string) error

	// Per-owner usage accounting. ReserveUsage atomically adds n bytes to
	// the owner's usage iff the result stays within ceiling.
	ReserveUsage(ctx context.Context, ownerID string, n, ceiling int64) (bool, error)
	ReleaseUsage(ctx context.Context, ownerID string, n int64) error
	GetUsage(ctx context.Context, ownerID string) (int64, error)

	Close() error
}
