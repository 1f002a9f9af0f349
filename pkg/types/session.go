// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// UploadSession describes one chunked-upload attempt, keyed by an opaque
// unguessable UploadID minted at init. The session descriptor and its
// chunk records are distinct types sharing only the UploadID key.
type UploadSession struct {
	UploadID    string    `json:"upload_id"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int64     `json:"total_chunks"` // ceil(FileSize / ChunkSize)
	ContentHash string    `json:"content_hash"` // client-declared whole-file hash, advisory only
	OwnerID     string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkRecord is one received piece of a session. At most one record
// exists per (UploadID, ChunkIndex); re-upload overwrites, so chunk
// upload is idempotent and retry-safe. A session is complete iff the
// count of completed records equals TotalChunks.
type ChunkRecord struct {
	UploadID   string    `json:"upload_id"`
	ChunkIndex int64     `json:"chunk_index"` // 0-based, < TotalChunks
	ChunkHash  string    `json:"chunk_hash"`  // server-computed digest of received bytes
	Completed  bool      `json:"completed"`
	UpdatedAt  time.Time `json:"updated_at"`
}
