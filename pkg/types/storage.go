// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrKeyNotFound is returned when a storage key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrURLUnsupported is returned by FileURL on backends that cannot
	// mint client-facing URLs. Callers fall back to streaming through
	// the service.
	ErrURLUnsupported = errors.New("backend does not support direct URLs")
)

// BackendStorage is the capability surface every storage backend
// implements. Chunk staging keys are derived from the upload ID, so a
// session's chunks can be merged and purged without the caller tracking
// individual keys.
type BackendStorage interface {
	Type() StorageType

	// Finished objects.
	Write(ctx context.Context, key string, data io.Reader, size int64) error
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)

	// Chunk staging. WriteChunk is idempotent per (uploadID, index);
	// a retried chunk overwrites the previous bytes.
	WriteChunk(ctx context.Context, uploadID string, index int64, data io.Reader, size int64) error
	MergeChunks(ctx context.Context, uploadID string, totalChunks int64, destKey string) error
	PurgeChunks(ctx context.Context, uploadID string) error

	// FileURL returns a time-limited direct URL for key, or
	// ErrURLUnsupported.
	FileURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	Close() error
}
