// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota enforces the per-owner storage ceiling.
package quota

import (
	"context"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
)

// Guard reserves and releases per-owner storage. Reservation is a single
// atomic store operation, not a read-then-write, so concurrent uploads
// for one owner cannot jointly exceed the ceiling.
type Guard struct {
	store   metadata.Store
	ceiling int64
}

// NewGuard creates a Guard with the configured per-owner byte ceiling.
func NewGuard(store metadata.Store, ceiling int64) *Guard {
	return &Guard{store: store, ceiling: ceiling}
}

// Reserve claims n bytes for ownerID. Anonymous uploads carry no owner
// and are not quota-tracked.
func (g *Guard) Reserve(ctx context.Context, ownerID string, n int64) error {
	if ownerID == "" || n <= 0 {
		return nil
	}
	ok, err := g.store.ReserveUsage(ctx, ownerID, n, g.ceiling)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.QuotaExceeded(g.ceiling)
	}
	return nil
}

// Release returns n bytes to the owner's budget. Failures are logged and
// swallowed; a missed release leaks quota but must not fail the caller's
// cleanup path.
func (g *Guard) Release(ctx context.Context, ownerID string, n int64) {
	if ownerID == "" || n <= 0 {
		return
	}
	if err := g.store.ReleaseUsage(ctx, ownerID, n); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("owner_id", ownerID).
			Int64("bytes", n).
			Msg("failed to release quota reservation")
	}
}

// Used returns the owner's current reserved bytes.
func (g *Guard) Used(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, nil
	}
	return g.store.GetUsage(ctx, ownerID)
}

// Ceiling returns the configured per-owner byte ceiling.
func (g *Guard) Ceiling() int64 {
	return g.ceiling
}
