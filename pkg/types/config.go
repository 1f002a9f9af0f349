// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// StorageType identifies a storage backend implementation.
type StorageType string

const (
	StorageTypeLocal  StorageType = "local"
	StorageTypeS3     StorageType = "s3"
	StorageTypeMemory StorageType = "memory"
)

// BackendConfig configures the storage backend chosen at startup.
type BackendConfig struct {
	Type StorageType `mapstructure:"type"`

	// Local filesystem backend
	Path string `mapstructure:"path"`

	// S3-compatible backend
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// DBConfig configures the metadata store.
type DBConfig struct {
	// Driver is "memory", "postgres", or "mysql".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// CodeConfig controls retrieval-code generation. Collision probability is
// a function of Length and Alphabet; both are configuration inputs.
type CodeConfig struct {
	Length      int    `mapstructure:"length"`
	Alphabet    string `mapstructure:"alphabet"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// QuotaConfig bounds a single owner's cumulative stored bytes.
type QuotaConfig struct {
	PerOwnerBytes int64 `mapstructure:"per_owner_bytes"`
}

// RateBucketConfig configures one named per-IP rate bucket.
type RateBucketConfig struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RedisConfig configures the distributed rate limiter. When Enabled is
// false the local in-memory limiter is used instead.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	KeyPrefix string        `mapstructure:"key_prefix"`
	KeyTTL    time.Duration `mapstructure:"key_ttl"`

	// FailOpen allows requests when Redis is unavailable.
	FailOpen bool `mapstructure:"fail_open"`
}

// RateLimitConfig holds the two independently configured buckets plus a
// global ingress throttle.
type RateLimitConfig struct {
	Upload RateBucketConfig `mapstructure:"upload"`
	Error  RateBucketConfig `mapstructure:"error"`

	// Global request throttle across all clients (0 = unlimited).
	GlobalRPS   int `mapstructure:"global_rps"`
	GlobalBurst int `mapstructure:"global_burst"`

	Redis RedisConfig `mapstructure:"redis"`
}

// Config is the immutable service configuration, resolved once at startup
// and passed into each component at construction.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// MaxUploadBytes is the global per-file size ceiling.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// DefaultChunkSize applies when an init request omits chunk_size.
	DefaultChunkSize int64 `mapstructure:"default_chunk_size"`

	// TokenSecret signs direct-download capability tokens.
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`

	Backend   BackendConfig   `mapstructure:"backend"`
	DB        DBConfig        `mapstructure:"db"`
	Code      CodeConfig      `mapstructure:"code"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":12345",
		MaxUploadBytes:   10 << 30, // 10 GiB
		DefaultChunkSize: 5 << 20,  // 5 MiB
		TokenTTL:         time.Hour,
		Backend: BackendConfig{
			Type: StorageTypeLocal,
			Path: "./data",
		},
		DB: DBConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Code: CodeConfig{
			Length: 5,
			// No easily-confused characters (0/O, 1/I/l).
			Alphabet:    "23456789ABCDEFGHJKLMNPQRSTUVWXYZ",
			MaxAttempts: 16,
		},
		Quota: QuotaConfig{
			PerOwnerBytes: 10 << 30,
		},
		RateLimit: RateLimitConfig{
			Upload: RateBucketConfig{Limit: 30, Window: time.Minute},
			Error:  RateBucketConfig{Limit: 10, Window: time.Minute},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "zapshare:ratelimit:",
				KeyTTL:    time.Hour,
				FailOpen:  true,
			},
		},
	}
}
