package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegister_CustomType(t *testing.T) {
	t.Parallel()

	customType := types.StorageType("test-custom")

	Register(customType, func(cfg types.BackendConfig) (types.BackendStorage, error) {
		return NewMemoryStorage(), nil
	})

	b, err := New(types.BackendConfig{Type: customType})
	require.NoError(t, err)
	require.NotNil(t, b)
	defer b.Close()

	assert.Equal(t, types.StorageTypeMemory, b.Type())
}

func TestNew_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(types.BackendConfig{Type: "unknown-type"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

// ============================================================================
// Backend conformance
// ============================================================================

func newTestBackends(t *testing.T) map[string]types.BackendStorage {
	t.Helper()

	local, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: t.TempDir()})
	require.NoError(t, err)

	return map[string]types.BackendStorage{
		"memory": NewMemoryStorage(),
		"local":  local,
	}
}

func TestBackend_WriteReadDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			payload := []byte("hello zapshare")
			require.NoError(t, b.Write(ctx, "share/2025/01/01/abc.txt", bytes.NewReader(payload), int64(len(payload))))

			size, err := b.Size(ctx, "share/2025/01/01/abc.txt")
			require.NoError(t, err)
			assert.Equal(t, int64(len(payload)), size)

			rc, err := b.Read(ctx, "share/2025/01/01/abc.txt")
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			require.NoError(t, b.Delete(ctx, "share/2025/01/01/abc.txt"))
			// Deleting a missing key is a no-op.
			require.NoError(t, b.Delete(ctx, "share/2025/01/01/abc.txt"))

			_, err = b.Read(ctx, "share/2025/01/01/abc.txt")
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrKeyNotFound))
		})
	}
}

func TestBackend_ChunkMergeOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			// Write chunks out of order; merge must still follow index order.
			chunks := []string{"aaaa", "bbbb", "cc"}
			for _, i := range []int64{2, 0, 1} {
				data := chunks[i]
				require.NoError(t, b.WriteChunk(ctx, "up-1", i, strings.NewReader(data), int64(len(data))))
			}

			require.NoError(t, b.MergeChunks(ctx, "up-1", 3, "share/merged.bin"))

			rc, err := b.Read(ctx, "share/merged.bin")
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, "aaaabbbbcc", string(got))
		})
	}
}

func TestBackend_ChunkOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			require.NoError(t, b.WriteChunk(ctx, "up-2", 0, strings.NewReader("first"), 5))
			require.NoError(t, b.WriteChunk(ctx, "up-2", 0, strings.NewReader("second"), 6))

			require.NoError(t, b.MergeChunks(ctx, "up-2", 1, "share/out.bin"))

			rc, err := b.Read(ctx, "share/out.bin")
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, "second", string(got))
		})
	}
}

func TestBackend_MergeMissingChunk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			require.NoError(t, b.WriteChunk(ctx, "up-3", 0, strings.NewReader("x"), 1))
			// Chunk 1 never written.
			err := b.MergeChunks(ctx, "up-3", 2, "share/never.bin")
			require.Error(t, err)

			// The destination key must not exist after a failed merge.
			exists, err := b.Exists(ctx, "share/never.bin")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestBackend_PurgeChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			require.NoError(t, b.WriteChunk(ctx, "up-4", 0, strings.NewReader("x"), 1))
			require.NoError(t, b.WriteChunk(ctx, "up-4", 1, strings.NewReader("y"), 1))
			require.NoError(t, b.WriteChunk(ctx, "up-other", 0, strings.NewReader("z"), 1))

			require.NoError(t, b.PurgeChunks(ctx, "up-4"))
			// Purge is idempotent.
			require.NoError(t, b.PurgeChunks(ctx, "up-4"))

			exists, err := b.Exists(ctx, utils.ChunkKey("up-4", 0))
			require.NoError(t, err)
			assert.False(t, exists)

			// Other sessions are untouched.
			exists, err = b.Exists(ctx, utils.ChunkKey("up-other", 0))
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestBackend_FileURLUnsupported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, b := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			_, err := b.FileURL(ctx, "share/any.bin", time.Minute)
			assert.True(t, errors.Is(err, types.ErrURLUnsupported))
		})
	}
}
