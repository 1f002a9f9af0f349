// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/LeeDigitalWorks/zapshare/pkg/types"
)

// RedisLimiter implements distributed per-IP limiting using Redis and GCRA.
//
// GCRA (Generic Cell Rate Algorithm) provides smooth rate limiting without
// fixed time windows. It tracks the "theoretical arrival time" (TAT) for
// each key, allowing requests only when the TAT has passed.
//
// The Lua script keeps the check-and-update atomic, so multiple service
// instances sharing one Redis stay consistent.
type RedisLimiter struct {
	client *redis.Client
	cfg    types.RateLimitConfig
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter connects to Redis and returns a distributed limiter.
func NewRedisLimiter(cfg types.RateLimitConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisLimiter{client: client, cfg: cfg}, nil
}

// NewRedisLimiterWithClient wraps an existing client, for tests.
func NewRedisLimiterWithClient(client *redis.Client, cfg types.RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

// gcraScript is a Lua script implementing GCRA for atomic rate limiting.
// Returns: allowed (1 or 0), remaining tokens, reset time in ms
//
// GCRA uses a "theoretical arrival time" (TAT) approach:
// - TAT represents when the bucket will be full again
// - Each request moves TAT forward by the emission interval (1/rate seconds)
// - Requests are allowed if TAT <= now + burst_offset
// When commit is 0 the script only answers whether one token would fit;
// the TAT is left untouched.
var gcraScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])        -- Current time in microseconds
local burst = tonumber(ARGV[2])      -- Burst size (max tokens)
local rate = tonumber(ARGV[3])       -- Tokens per second
local ttl = tonumber(ARGV[4])        -- Key TTL in seconds
local commit = tonumber(ARGV[5])     -- 1 = consume a token, 0 = peek only

-- Emission interval: time between token additions (microseconds per token)
local emission_interval = 1000000 / rate

-- Burst offset: maximum time TAT can be ahead of now
local burst_offset = burst * emission_interval

-- Get current TAT (theoretical arrival time)
local tat = redis.call("GET", key)
if tat then
    tat = tonumber(tat)
else
    tat = now
end

-- Calculate new TAT if we allow this request
local new_tat = tat + emission_interval

-- Check if one token fits
local allow_at = now + burst_offset
if new_tat > allow_at then
    local remaining = math.max(0, math.floor((allow_at - tat) / emission_interval))
    local reset_after = math.ceil((tat - now) / 1000)
    return {0, remaining, reset_after}
end

if commit == 1 then
    -- If tat is in the past, set it to now before adding cost
    if tat < now then
        new_tat = now + emission_interval
    end
    redis.call("SET", key, new_tat, "EX", ttl)
end

local remaining = math.max(0, math.floor((allow_at - new_tat) / emission_interval))
local reset_after = math.ceil((new_tat - now) / 1000)

return {1, remaining, reset_after}
`)

func (r *RedisLimiter) run(ctx context.Context, bucket, ip string, commit int64) (bool, error) {
	cfg := r.cfg.Upload
	if bucket == BucketError {
		cfg = r.cfg.Error
	}
	if cfg.Limit <= 0 || ip == "" {
		return true, nil
	}

	key := r.cfg.Redis.KeyPrefix + bucket + ":" + ip
	now := time.Now().UnixMicro()
	ttlSeconds := int64(r.cfg.Redis.KeyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 3600
	}

	// Tokens refill so the full budget spreads across the window.
	rate := float64(cfg.Limit) / cfg.Window.Seconds()

	result, err := gcraScript.Run(ctx, r.client, []string{key},
		now, cfg.Limit, rate, ttlSeconds, commit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket).Msg("redis rate limit check failed")
		if r.cfg.Redis.FailOpen {
			return true, nil
		}
		return false, err
	}
	return result[0] == 1, nil
}

func (r *RedisLimiter) Allowed(ctx context.Context, bucket, ip string) (bool, error) {
	return r.run(ctx, bucket, ip, 0)
}

func (r *RedisLimiter) Record(ctx context.Context, bucket, ip string) error {
	allowed, err := r.run(ctx, bucket, ip, 1)
	if err != nil {
		return err
	}
	if allowed {
		recordEvent(bucket)
	}
	return nil
}

// Reset clears the state for one (bucket, ip) pair.
func (r *RedisLimiter) Reset(ctx context.Context, bucket, ip string) error {
	return r.client.Del(ctx, r.cfg.Redis.KeyPrefix+bucket+":"+ip).Err()
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
