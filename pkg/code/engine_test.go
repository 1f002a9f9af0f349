// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package code

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata/memory"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() types.CodeConfig {
	return types.CodeConfig{
		Length:      5,
		Alphabet:    "23456789ABCDEFGHJKLMNPQRSTUVWXYZ",
		MaxAttempts: 16,
	}
}

// ============================================================================
// ComputeExpiry
// ============================================================================

func TestComputeExpiry_Count(t *testing.T) {
	t.Parallel()
	now := time.Now()

	expiresAt, remaining, unlimited, err := ComputeExpiry(types.ExpireStyleCount, 3, now)
	require.NoError(t, err)
	assert.Nil(t, expiresAt)
	assert.Equal(t, int64(3), remaining)
	assert.False(t, unlimited)
}

func TestComputeExpiry_CountCeiling(t *testing.T) {
	t.Parallel()

	_, remaining, _, err := ComputeExpiry(types.ExpireStyleCount, 1<<40, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(usageCeiling), remaining)
}

func TestComputeExpiry_TimeStyles(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		style types.ExpireStyle
		value int64
		want  time.Time
	}{
		{types.ExpireStyleMinute, 30, now.Add(30 * time.Minute)},
		{types.ExpireStyleHour, 2, now.Add(2 * time.Hour)},
		{types.ExpireStyleDay, 7, now.Add(7 * 24 * time.Hour)},
		{types.ExpireStyleWeek, 2, now.Add(14 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		expiresAt, remaining, unlimited, err := ComputeExpiry(tt.style, tt.value, now)
		require.NoError(t, err, string(tt.style))
		require.NotNil(t, expiresAt)
		assert.Equal(t, tt.want, *expiresAt, string(tt.style))
		assert.Equal(t, int64(0), remaining)
		assert.True(t, unlimited)
	}
}

func TestComputeExpiry_Forever(t *testing.T) {
	t.Parallel()

	expiresAt, remaining, unlimited, err := ComputeExpiry(types.ExpireStyleForever, 0, time.Now())
	require.NoError(t, err)
	assert.Nil(t, expiresAt)
	assert.Equal(t, int64(0), remaining)
	assert.True(t, unlimited)
}

func TestComputeExpiry_Invalid(t *testing.T) {
	t.Parallel()

	_, _, _, err := ComputeExpiry(types.ExpireStyleCount, 0, time.Now())
	require.Error(t, err)

	_, _, _, err = ComputeExpiry(types.ExpireStyleHour, -1, time.Now())
	require.Error(t, err)

	_, _, _, err = ComputeExpiry(types.ExpireStyle("fortnight"), 1, time.Now())
	require.Error(t, err)
}

// ============================================================================
// IsExpired
// ============================================================================

// A share is expired when either gate trips: deadline passed, or uses
// exhausted on a count-limited share. Never both required.
func TestIsExpired_SingleGate(t *testing.T) {
	t.Parallel()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		fc   types.FileCode
		want bool
	}{
		{"count share with uses left", types.FileCode{RemainingUses: 2}, false},
		{"count share spent", types.FileCode{RemainingUses: 0}, true},
		{"time share before deadline", types.FileCode{ExpiresAt: &future, Unlimited: true}, false},
		{"time share after deadline", types.FileCode{ExpiresAt: &past, Unlimited: true}, true},
		{"spent count gate trips despite future deadline", types.FileCode{ExpiresAt: &future, RemainingUses: 0}, true},
		{"deadline gate trips despite uses left", types.FileCode{ExpiresAt: &past, RemainingUses: 5}, true},
		{"forever share", types.FileCode{Unlimited: true}, false},
		// The deadline instant itself is expired, same as the stores'
		// ConsumeUse guard.
		{"time share exactly at deadline", types.FileCode{ExpiresAt: &now, Unlimited: true}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsExpired(&tt.fc, now), tt.name)
	}
}

// ============================================================================
// Mint
// ============================================================================

func TestEngine_Mint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := NewEngine(memory.NewStore(), testConfig())
	fc := &types.FileCode{StoredRef: "share/x", Size: 1, RemainingUses: 1, CreatedAt: time.Now()}
	require.NoError(t, e.Mint(ctx, fc))

	assert.Len(t, fc.Code, 5)
	for _, r := range fc.Code {
		assert.Contains(t, testConfig().Alphabet, string(r))
	}
}

// collidingStore forces the first n inserts to report a duplicate code.
type collidingStore struct {
	metadata.Store
	collisions int
	attempts   int
}

func (s *collidingStore) CreateFileCode(ctx context.Context, fc *types.FileCode) error {
	s.attempts++
	if s.attempts <= s.collisions {
		return metadata.ErrDuplicateCode
	}
	return s.Store.CreateFileCode(ctx, fc)
}

func TestEngine_Mint_RetriesOnCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := &collidingStore{Store: memory.NewStore(), collisions: 3}
	e := NewEngine(s, testConfig())

	fc := &types.FileCode{RemainingUses: 1, CreatedAt: time.Now()}
	require.NoError(t, e.Mint(ctx, fc))
	assert.Equal(t, 4, s.attempts)
}

func TestEngine_Mint_Exhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := &collidingStore{Store: memory.NewStore(), collisions: 1000}
	e := NewEngine(s, testConfig())

	err := e.Mint(ctx, &types.FileCode{RemainingUses: 1, CreatedAt: time.Now()})
	assert.True(t, errors.Is(err, ErrCodeSpaceExhausted))
	assert.Equal(t, 16, s.attempts)
}

func TestEngine_RecordUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.NewStore()
	e := NewEngine(store, testConfig())

	fc := &types.FileCode{RemainingUses: 2, CreatedAt: time.Now()}
	require.NoError(t, e.Mint(ctx, fc))

	for _, want := range []bool{true, true, false} {
		ok, err := e.RecordUse(ctx, fc.Code, time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
}
