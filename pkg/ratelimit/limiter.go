// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-IP admission control over named buckets.
// The service runs two buckets: "upload" counts upload operations and
// "error" counts failed retrieval attempts, each with its own limit and
// window. Checking and recording are separate steps so an endpoint can
// refuse admission up front and record an event only after the outcome
// is known.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

// Bucket names used by the HTTP layer.
const (
	BucketUpload = "upload"
	BucketError  = "error"
)

// Limiter is the per-IP bucket interface.
type Limiter interface {
	// Allowed reports whether ip is under the bucket's limit.
	Allowed(ctx context.Context, bucket, ip string) (bool, error)

	// Record counts one event for ip in the bucket.
	Record(ctx context.Context, bucket, ip string) error

	Close() error
}

// entry tracks one (bucket, ip) pair in a fixed window.
type entry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int64
	lastUsed    atomic.Int64 // Unix timestamp
}

// WindowLimiter is a local fixed-window limiter. State lives in a
// sync.Map keyed by bucket+ip; a background goroutine evicts idle
// entries.
type WindowLimiter struct {
	upload types.RateBucketConfig
	errors types.RateBucketConfig

	entries sync.Map // "bucket|ip" -> *entry
	done    chan struct{}
	closed  sync.Once
}

var _ Limiter = (*WindowLimiter)(nil)

// NewWindowLimiter creates a local limiter from the bucket configs.
func NewWindowLimiter(cfg types.RateLimitConfig) *WindowLimiter {
	l := &WindowLimiter{
		upload: cfg.Upload,
		errors: cfg.Error,
		done:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *WindowLimiter) bucketConfig(bucket string) types.RateBucketConfig {
	if bucket == BucketError {
		return l.errors
	}
	return l.upload
}

func (l *WindowLimiter) getOrCreate(bucket, ip string) *entry {
	key := bucket + "|" + ip
	if v, ok := l.entries.Load(key); ok {
		e := v.(*entry)
		e.lastUsed.Store(time.Now().Unix())
		return e
	}
	e := &entry{windowStart: time.Now()}
	e.lastUsed.Store(time.Now().Unix())
	actual, _ := l.entries.LoadOrStore(key, e)
	return actual.(*entry)
}

func (l *WindowLimiter) Allowed(ctx context.Context, bucket, ip string) (bool, error) {
	cfg := l.bucketConfig(bucket)
	if cfg.Limit <= 0 || ip == "" {
		return true, nil
	}

	e := l.getOrCreate(bucket, ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Since(e.windowStart) >= cfg.Window {
		e.windowStart = time.Now()
		e.count = 0
	}
	return e.count < cfg.Limit, nil
}

func (l *WindowLimiter) Record(ctx context.Context, bucket, ip string) error {
	cfg := l.bucketConfig(bucket)
	if cfg.Limit <= 0 || ip == "" {
		return nil
	}

	e := l.getOrCreate(bucket, ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Since(e.windowStart) >= cfg.Window {
		e.windowStart = time.Now()
		e.count = 0
	}
	e.count++
	recordEvent(bucket)
	return nil
}

// cleanupLoop periodically removes stale entries.
func (l *WindowLimiter) cleanupLoop() {
	interval := l.upload.Window
	if l.errors.Window > interval {
		interval = l.errors.Window
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-interval * 2).Unix()
			l.entries.Range(func(key, value any) bool {
				if value.(*entry).lastUsed.Load() < cutoff {
					l.entries.Delete(key)
				}
				return true
			})
		}
	}
}

func (l *WindowLimiter) Close() error {
	l.closed.Do(func() { close(l.done) })
	return nil
}
