// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory metadata store for tests and
// single-node development. All methods copy records on the way in and
// out so callers never share mutable state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

type chunkKey struct {
	uploadID string
	index    int64
}

// Store is an in-memory metadata.Store.
type Store struct {
	mu sync.Mutex

	nextID int64
	codes  map[string]*types.FileCode

	sessions map[string]*types.UploadSession
	chunks   map[chunkKey]*types.ChunkRecord

	usage map[string]int64
}

var _ metadata.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		codes:    make(map[string]*types.FileCode),
		sessions: make(map[string]*types.UploadSession),
		chunks:   make(map[chunkKey]*types.ChunkRecord),
		usage:    make(map[string]int64),
	}
}

// ============================================================================
// File codes
// ============================================================================

func (s *Store) CreateFileCode(ctx context.Context, fc *types.FileCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[fc.Code]; exists {
		return metadata.ErrDuplicateCode
	}
	s.nextID++
	fc.ID = s.nextID
	cp := *fc
	s.codes[fc.Code] = &cp
	return nil
}

func (s *Store) GetFileCode(ctx context.Context, code string) (*types.FileCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, ok := s.codes[code]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *fc
	return &cp, nil
}

func (s *Store) DeleteFileCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.codes, code)
	return nil
}

func (s *Store) ListOwnerFileCodes(ctx context.Context, ownerID string, page, pageSize int) ([]*types.FileCode, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*types.FileCode
	for _, fc := range s.codes {
		if fc.OwnerID == ownerID {
			cp := *fc
			owned = append(owned, &cp)
		}
	}
	// Newest first, id as tiebreaker for stable pagination.
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := int64(len(owned))
	start := (page - 1) * pageSize
	if start >= len(owned) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], total, nil
}

func (s *Store) ConsumeUse(ctx context.Context, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, ok := s.codes[code]
	if !ok {
		return false, metadata.ErrNotFound
	}
	if fc.ExpiresAt != nil && !fc.ExpiresAt.After(now) {
		return false, nil
	}
	if fc.Unlimited {
		fc.UsedCount++
		return true, nil
	}
	if fc.RemainingUses <= 0 {
		return false, nil
	}
	fc.RemainingUses--
	fc.UsedCount++
	return true, nil
}

// ============================================================================
// Upload sessions
// ============================================================================

func (s *Store) CreateSession(ctx context.Context, sess *types.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.UploadID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, uploadID string) (*types.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[uploadID]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) GetSessionByHash(ctx context.Context, ownerID, contentHash string, fileSize int64) (*types.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID && sess.ContentHash == contentHash && sess.FileSize == fileSize {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, metadata.ErrNotFound
}

func (s *Store) DeleteSession(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[uploadID]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.sessions, uploadID)
	return nil
}

// ============================================================================
// Chunks
// ============================================================================

func (s *Store) UpsertChunk(ctx context.Context, c *types.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.chunks[chunkKey{c.UploadID, c.ChunkIndex}] = &cp
	return nil
}

func (s *Store) CompletedChunkIndexes(ctx context.Context, uploadID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var indexes []int64
	for k, c := range s.chunks {
		if k.uploadID == uploadID && c.Completed {
			indexes = append(indexes, k.index)
		}
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes, nil
}

func (s *Store) CompletedChunkCount(ctx context.Context, uploadID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, c := range s.chunks {
		if k.uploadID == uploadID && c.Completed {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteChunks(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.chunks {
		if k.uploadID == uploadID {
			delete(s.chunks, k)
		}
	}
	return nil
}

// ============================================================================
// Usage
// ============================================================================

func (s *Store) ReserveUsage(ctx context.Context, ownerID string, n, ceiling int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usage[ownerID]+n > ceiling {
		return false, nil
	}
	s.usage[ownerID] += n
	return true, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, ownerID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage[ownerID] -= n
	if s.usage[ownerID] < 0 {
		s.usage[ownerID] = 0
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.usage[ownerID], nil
}

func (s *Store) Close() error {
	return nil
}
