package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

func init() {
	Register(types.StorageTypeLocal, NewLocal)
}

// Local implements BackendStorage for local filesystem
type Local struct {
	basePath string
}

// NewLocal creates a local filesystem backend
func NewLocal(cfg types.BackendConfig) (types.BackendStorage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path required for local backend")
	}

	path := utils.ResolvePath(cfg.Path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}

	return &Local{basePath: path}, nil
}

func (l *Local) Type() types.StorageType {
	return types.StorageTypeLocal
}

func (l *Local) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	path := filepath.Join(l.basePath, key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(path) // Clean up on error
		return fmt.Errorf("write data: %w", err)
	}

	return f.Sync()
}

func (l *Local) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(l.basePath, key)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	path := filepath.Join(l.basePath, key)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil // Already gone
	}
	return err
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	path := filepath.Join(l.basePath, key)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) Size(ctx context.Context, key string) (int64, error) {
	path := filepath.Join(l.basePath, key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (l *Local) WriteChunk(ctx context.Context, uploadID string, index int64, data io.Reader, size int64) error {
	return l.Write(ctx, utils.ChunkKey(uploadID, index), data, size)
}

// MergeChunks concatenates the staged chunks in index order into destKey.
// The destination is written to a temp file first so a failed merge never
// leaves a partial object at the final key.
func (l *Local) MergeChunks(ctx context.Context, uploadID string, totalChunks int64, destKey string) error {
	destPath := filepath.Join(l.basePath, destKey)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".merge-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	for i := int64(0); i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunkPath := filepath.Join(l.basePath, utils.ChunkKey(uploadID, i))
		f, err := os.Open(chunkPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: chunk %d of %s", types.ErrKeyNotFound, i, uploadID)
			}
			return err
		}
		_, err = io.Copy(tmp, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("append chunk %d: %w", i, err)
		}
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync merged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close merged file: %w", err)
	}
	return os.Rename(tmpPath, destPath)
}

func (l *Local) PurgeChunks(ctx context.Context, uploadID string) error {
	dir := filepath.Join(l.basePath, "chunks", uploadID)
	err := os.RemoveAll(dir)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) FileURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", types.ErrURLUnsupported
}

func (l *Local) Close() error {
	return nil
}
