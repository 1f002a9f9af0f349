// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

func TestWritableFile(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}

	permission := info.Mode().Perm()
	if permission&0200 != 0 {
		return nil
	}

	return os.ErrPermission
}

func ResolvePath(path string) string {
	if !strings.Contains(path, "~") {
		return path
	}

	if path == "~" {
		if usr, err := user.Current(); err == nil {
			path = usr.HomeDir
		}
	} else if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[2:])
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

// SplitName splits a file name into its stem and extension. The extension
// keeps its leading dot, so the parts concatenate back to the original.
func SplitName(name string) (prefix, suffix string) {
	base := filepath.Base(name)
	suffix = filepath.Ext(base)
	prefix = strings.TrimSuffix(base, suffix)
	return prefix, suffix
}

// StoredKey builds a date-sharded storage key for a finished share. The
// random component prevents key collisions and name probing.
func StoredKey(now time.Time, suffix string) string {
	return fmt.Sprintf("share/%04d/%02d/%02d/%s%s",
		now.Year(), now.Month(), now.Day(),
		strings.ReplaceAll(uuid.NewString(), "-", ""), suffix)
}

// ChunkKey builds the staging key for one chunk of an in-flight session.
func ChunkKey(uploadID string, index int64) string {
	return fmt.Sprintf("chunks/%s/%08d", uploadID, index)
}
