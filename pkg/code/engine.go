// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package code implements retrieval code minting and share expiry rules.
package code

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

// ErrCodeSpaceExhausted is returned when every generation attempt
// collided with an existing code. The code space is too dense; the
// operator should raise code.length.
var ErrCodeSpaceExhausted = errors.New("code space exhausted")

// Engine mints retrieval codes and applies expiry policy.
type Engine struct {
	store       metadata.Store
	length      int
	alphabet    string
	maxAttempts int
}

// usageCeiling bounds count-style shares so remaining_uses arithmetic
// never approaches int64 overflow.
const usageCeiling = math.MaxInt32

// NewEngine creates an Engine over the given store.
func NewEngine(store metadata.Store, cfg types.CodeConfig) *Engine {
	return &Engine{
		store:       store,
		length:      cfg.Length,
		alphabet:    cfg.Alphabet,
		maxAttempts: cfg.MaxAttempts,
	}
}

// randomCode draws a code from the configured alphabet using crypto/rand.
func (e *Engine) randomCode() (string, error) {
	buf := make([]byte, e.length)
	max := big.NewInt(int64(len(e.alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random index: %w", err)
		}
		buf[i] = e.alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Mint generates a fresh code and persists fc under it. Uniqueness is
// enforced by the store's unique constraint rather than a lookup, so two
// concurrent mints can never both claim the same code.
func (e *Engine) Mint(ctx context.Context, fc *types.FileCode) error {
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		c, err := e.randomCode()
		if err != nil {
			return err
		}
		fc.Code = c

		err = e.store.CreateFileCode(ctx, fc)
		if err == nil {
			return nil
		}
		if errors.Is(err, metadata.ErrDuplicateCode) {
			continue
		}
		return err
	}
	return ErrCodeSpaceExhausted
}

// ComputeExpiry translates an expire style and value into the share's
// expiry fields. Count-style shares get a use budget and no deadline;
// time-style shares get a deadline and an unlimited use budget; forever
// shares get neither.
func ComputeExpiry(style types.ExpireStyle, value int64, now time.Time) (expiresAt *time.Time, remainingUses int64, unlimited bool, err error) {
	if style != types.ExpireStyleForever && value <= 0 {
		return nil, 0, false, apierr.Validation("expire value must be positive, got %d", value)
	}

	switch style {
	case types.ExpireStyleCount:
		if value > usageCeiling {
			value = usageCeiling
		}
		return nil, value, false, nil
	case types.ExpireStyleMinute:
		t := now.Add(time.Duration(value) * time.Minute)
		return &t, 0, true, nil
	case types.ExpireStyleHour:
		t := now.Add(time.Duration(value) * time.Hour)
		return &t, 0, true, nil
	case types.ExpireStyleDay:
		t := now.Add(time.Duration(value) * 24 * time.Hour)
		return &t, 0, true, nil
	case types.ExpireStyleWeek:
		t := now.Add(time.Duration(value) * 7 * 24 * time.Hour)
		return &t, 0, true, nil
	case types.ExpireStyleForever:
		return nil, 0, true, nil
	default:
		return nil, 0, false, apierr.Validation("unknown expire style: %s", style)
	}
}

// IsExpired reports whether fc is no longer servable: its deadline has
// passed, or it is count-limited with no uses left. A share is expired if
// either gate trips, never both required.
func IsExpired(fc *types.FileCode, now time.Time) bool {
	return fc.ExpiredAt(now)
}

// RecordUse burns one use of a count-limited share. ok=false with a nil
// error means the share exists but is spent or past its deadline.
func (e *Engine) RecordUse(ctx context.Context, code string, now time.Time) (bool, error) {
	return e.store.ConsumeUse(ctx, code, now)
}
