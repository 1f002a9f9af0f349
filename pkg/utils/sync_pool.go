// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"encoding/hex"
	"hash"
	"io"
	"sync"

	"github.com/minio/sha256-simd"
)

var (
	syncPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
)

func SyncPoolGetBuffer() *bytes.Buffer {
	return syncPool.Get().(*bytes.Buffer)
}

func SyncPoolPutBuffer(buffer *bytes.Buffer) {
	buffer.Reset()
	syncPool.Put(buffer)
}

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}

// Sha256Hex returns the hex digest of b using a pooled hasher.
func Sha256Hex(b []byte) string {
	h := Sha256PoolGetHasher()
	defer Sha256PoolPutHasher(h)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Sha256Reader copies r into w while computing the hex digest of the bytes
// copied. Used by chunk ingestion to hash without a second pass.
func Sha256Reader(w io.Writer, r io.Reader) (string, int64, error) {
	h := Sha256PoolGetHasher()
	defer Sha256PoolPutHasher(h)
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
