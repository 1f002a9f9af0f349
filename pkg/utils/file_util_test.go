// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		suffix string
	}{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", "", ".bashrc"},
		{"dir/nested/photo.jpg", "photo", ".jpg"},
	}
	for _, tt := range tests {
		prefix, suffix := SplitName(tt.name)
		assert.Equal(t, tt.prefix, prefix, tt.name)
		assert.Equal(t, tt.suffix, suffix, tt.name)
	}
}

func TestStoredKey(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	key := StoredKey(now, ".png")
	assert.True(t, strings.HasPrefix(key, "share/2025/03/07/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, StoredKey(now, ".png"))
}

func TestChunkKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chunks/abc/00000003", ChunkKey("abc", 3))
}

func TestSha256Hex(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Sha256Hex(nil))
}
