// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/zapshare/pkg/chunk"
	"github.com/LeeDigitalWorks/zapshare/pkg/code"
	"github.com/LeeDigitalWorks/zapshare/pkg/debug"
	"github.com/LeeDigitalWorks/zapshare/pkg/env"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata/memory"
	"github.com/LeeDigitalWorks/zapshare/pkg/metadata/sqlstore"
	"github.com/LeeDigitalWorks/zapshare/pkg/quota"
	"github.com/LeeDigitalWorks/zapshare/pkg/ratelimit"
	"github.com/LeeDigitalWorks/zapshare/pkg/retrieve"
	"github.com/LeeDigitalWorks/zapshare/pkg/share"
	"github.com/LeeDigitalWorks/zapshare/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/upload"
	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the share server",
	Long: `Start the ZapShare HTTP server that handles:
- Single-shot and chunked file uploads
- Retrieval-code resolution and downloads
- Owner file listing and deletion`,
	Run: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	def := types.DefaultConfig()
	f := serverCmd.Flags()
	f.String("listen", def.ListenAddr, "Address for the share HTTP server")
	f.String("debug_listen", ":12346", "Address for the debug HTTP server (metrics, pprof, health)")
	f.String("log_level", "info", "Log level (debug, info, warn, error)")

	f.Int64("max_upload_bytes", def.MaxUploadBytes, "Global per-file size ceiling in bytes")
	f.Int64("default_chunk_size", def.DefaultChunkSize, "Chunk size when an init request omits one")
	f.String("token_secret", "", "Secret for signing download tokens (random per process if empty)")
	f.Duration("token_ttl", def.TokenTTL, "Validity window for download tokens and presigned URLs")

	f.String("backend_type", string(def.Backend.Type), "Storage backend (local, s3, memory)")
	f.String("backend_path", def.Backend.Path, "Base directory for the local backend")
	f.String("s3_endpoint", "", "S3 endpoint URL (empty for AWS)")
	f.String("s3_bucket", "", "S3 bucket for stored content")
	f.String("s3_region", "us-east-1", "S3 region")
	f.String("s3_access_key", "", "S3 access key")
	f.String("s3_secret_key", "", "S3 secret key (use env var S3_SECRET_KEY)")

	f.String("db_driver", def.DB.Driver, "Metadata store driver (memory, postgres, mysql)")
	f.String("db_dsn", "", "Database connection string")
	f.Int("db_max_open_conns", def.DB.MaxOpenConns, "Maximum open database connections")
	f.Int("db_max_idle_conns", def.DB.MaxIdleConns, "Maximum idle database connections")

	f.Int("code_length", def.Code.Length, "Retrieval code length")
	f.Int64("quota_per_owner_bytes", def.Quota.PerOwnerBytes, "Per-owner stored-bytes ceiling")

	f.Int64("rate_limit_upload", def.RateLimit.Upload.Limit, "Upload attempts per IP per window")
	f.Duration("rate_limit_upload_window", def.RateLimit.Upload.Window, "Upload bucket window")
	f.Int64("rate_limit_error", def.RateLimit.Error.Limit, "Failed lookups per IP per window")
	f.Duration("rate_limit_error_window", def.RateLimit.Error.Window, "Error bucket window")
	f.Int("global_rps", 0, "Global requests per second across all clients (0 = unlimited)")
	f.Int("global_burst", 0, "Burst size for the global throttle")
	f.Bool("rate_limit_redis_enabled", false, "Enable distributed rate limiting via Redis")
	f.String("rate_limit_redis_addr", def.RateLimit.Redis.Addr, "Redis address for distributed rate limiting")
	f.String("rate_limit_redis_password", "", "Redis password")
	f.Int("rate_limit_redis_db", 0, "Redis database number")
	f.Int("rate_limit_redis_pool_size", def.RateLimit.Redis.PoolSize, "Redis connection pool size")
	f.Bool("rate_limit_redis_fail_open", def.RateLimit.Redis.FailOpen, "Allow requests when Redis is unavailable")

	// Flags bind onto the nested config keys, so the precedence is
	// explicit flag > config file > env > flag default.
	viper.BindPFlag("listen_addr", f.Lookup("listen"))
	viper.BindPFlag("max_upload_bytes", f.Lookup("max_upload_bytes"))
	viper.BindPFlag("default_chunk_size", f.Lookup("default_chunk_size"))
	viper.BindPFlag("token_secret", f.Lookup("token_secret"))
	viper.BindPFlag("token_ttl", f.Lookup("token_ttl"))
	viper.BindPFlag("backend.type", f.Lookup("backend_type"))
	viper.BindPFlag("backend.path", f.Lookup("backend_path"))
	viper.BindPFlag("backend.endpoint", f.Lookup("s3_endpoint"))
	viper.BindPFlag("backend.bucket", f.Lookup("s3_bucket"))
	viper.BindPFlag("backend.region", f.Lookup("s3_region"))
	viper.BindPFlag("backend.access_key", f.Lookup("s3_access_key"))
	viper.BindPFlag("backend.secret_key", f.Lookup("s3_secret_key"))
	viper.BindPFlag("db.driver", f.Lookup("db_driver"))
	viper.BindPFlag("db.dsn", f.Lookup("db_dsn"))
	viper.BindPFlag("db.max_open_conns", f.Lookup("db_max_open_conns"))
	viper.BindPFlag("db.max_idle_conns", f.Lookup("db_max_idle_conns"))
	viper.BindPFlag("code.length", f.Lookup("code_length"))
	viper.BindPFlag("quota.per_owner_bytes", f.Lookup("quota_per_owner_bytes"))
	viper.BindPFlag("ratelimit.upload.limit", f.Lookup("rate_limit_upload"))
	viper.BindPFlag("ratelimit.upload.window", f.Lookup("rate_limit_upload_window"))
	viper.BindPFlag("ratelimit.error.limit", f.Lookup("rate_limit_error"))
	viper.BindPFlag("ratelimit.error.window", f.Lookup("rate_limit_error_window"))
	viper.BindPFlag("ratelimit.global_rps", f.Lookup("global_rps"))
	viper.BindPFlag("ratelimit.global_burst", f.Lookup("global_burst"))
	viper.BindPFlag("ratelimit.redis.enabled", f.Lookup("rate_limit_redis_enabled"))
	viper.BindPFlag("ratelimit.redis.addr", f.Lookup("rate_limit_redis_addr"))
	viper.BindPFlag("ratelimit.redis.password", f.Lookup("rate_limit_redis_password"))
	viper.BindPFlag("ratelimit.redis.db", f.Lookup("rate_limit_redis_db"))
	viper.BindPFlag("ratelimit.redis.pool_size", f.Lookup("rate_limit_redis_pool_size"))
	viper.BindPFlag("ratelimit.redis.fail_open", f.Lookup("rate_limit_redis_fail_open"))
	viper.BindPFlag("log_level", f.Lookup("log_level"))
	viper.BindPFlag("debug_listen", f.Lookup("debug_listen"))
}

func runServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("zapshare", false)
	f := NewFlagLoader(cmd)

	if level, err := zerolog.ParseLevel(f.String("log_level")); err == nil {
		logger.SetLevel(level)
	}

	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.TokenSecret == "" {
		// Download links stop working across restarts without a
		// configured secret.
		cfg.TokenSecret = randomSecret()
		logger.Warn().Msg("token_secret not set, using a random per-process secret")
	}

	debug.SetNotReady()

	store := openStore(cfg.DB)
	defer store.Close()

	be, err := backend.New(cfg.Backend)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage backend")
	}
	defer be.Close()

	guard := quota.NewGuard(store, cfg.Quota.PerOwnerBytes)
	engine := code.NewEngine(store, cfg.Code)
	signer := retrieve.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL)

	files := upload.NewService(store, be, guard, engine, cfg)
	chunks := chunk.NewManager(store, be, guard, engine, cfg)
	shares := retrieve.NewService(store, be, guard, engine, signer, cfg.TokenTTL)

	if env.IsLocal() && !cfg.RateLimit.Redis.Enabled {
		logger.Info().Msg("local environment, per-IP rate limiting disabled")
		cfg.RateLimit.Upload.Limit = 0
		cfg.RateLimit.Error.Limit = 0
	}
	limiter := openLimiter(cfg.RateLimit)
	defer limiter.Close()

	srv := share.NewServer(cfg, files, chunks, shares, limiter)

	httpServer := startHTTPServer(srv, cfg.ListenAddr)
	debugServer := startHTTPServer(debug.GetMux(), f.String("debug_listen"))

	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("backend", string(cfg.Backend.Type)).
		Str("db_driver", cfg.DB.Driver).
		Msg("zapshare server started")

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	debugServer.Shutdown(ctx)
}

func openStore(cfg types.DBConfig) metadata.Store {
	switch cfg.Driver {
	case "", "memory":
		logger.Warn().Msg("using in-memory metadata store, shares do not survive restarts")
		return memory.NewStore()
	default:
		store, err := sqlstore.Open(cfg)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Driver).Msg("failed to open metadata store")
		}
		return store
	}
}

func openLimiter(cfg types.RateLimitConfig) ratelimit.Limiter {
	if cfg.Redis.Enabled {
		limiter, err := ratelimit.NewRedisLimiter(cfg)
		if err != nil {
			if cfg.Redis.FailOpen {
				logger.Warn().Err(err).Msg("redis unreachable, falling back to local rate limiting")
				return ratelimit.NewWindowLimiter(cfg)
			}
			logger.Fatal().Err(err).Msg("failed to connect to redis for rate limiting")
		}
		logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("distributed rate limiting enabled")
		return limiter
	}
	return ratelimit.NewWindowLimiter(cfg)
}

func startHTTPServer(handler http.Handler, addr string) *http.Server {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{Handler: handler}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.Fatal().Err(err).Msg("failed to generate token secret")
	}
	return hex.EncodeToString(b)
}
