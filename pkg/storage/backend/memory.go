// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

func init() {
	Register(types.StorageTypeMemory, func(cfg types.BackendConfig) (types.BackendStorage, error) {
		return NewMemoryStorage(), nil
	})
}

// MemoryStorage is an in-memory backend for testing
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

func (m *MemoryStorage) Type() types.StorageType {
	return types.StorageTypeMemory
}

func (m *MemoryStorage) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = buf
	return nil
}

func (m *MemoryStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MemoryStorage) Size(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	}
	return int64(len(data)), nil
}

func (m *MemoryStorage) WriteChunk(ctx context.Context, uploadID string, index int64, data io.Reader, size int64) error {
	return m.Write(ctx, utils.ChunkKey(uploadID, index), data, size)
}

func (m *MemoryStorage) MergeChunks(ctx context.Context, uploadID string, totalChunks int64, destKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var merged []byte
	for i := int64(0); i < totalChunks; i++ {
		chunk, ok := m.data[utils.ChunkKey(uploadID, i)]
		if !ok {
			return fmt.Errorf("%w: chunk %d of %s", types.ErrKeyNotFound, i, uploadID)
		}
		merged = append(merged, chunk...)
	}
	m.data[destKey] = merged
	return nil
}

func (m *MemoryStorage) PurgeChunks(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := fmt.Sprintf("chunks/%s/", uploadID)
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *MemoryStorage) FileURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", types.ErrURLUnsupported
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}
