// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package share is the HTTP surface: single-shot and chunked uploads,
// code retrieval, and owner file management.
package share

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/LeeDigitalWorks/zapshare/pkg/apierr"
	"github.com/LeeDigitalWorks/zapshare/pkg/chunk"
	reqcontext "github.com/LeeDigitalWorks/zapshare/pkg/context"
	"github.com/LeeDigitalWorks/zapshare/pkg/debug"
	"github.com/LeeDigitalWorks/zapshare/pkg/logger"
	"github.com/LeeDigitalWorks/zapshare/pkg/ratelimit"
	"github.com/LeeDigitalWorks/zapshare/pkg/retrieve"
	"github.com/LeeDigitalWorks/zapshare/pkg/types"
	"github.com/LeeDigitalWorks/zapshare/pkg/upload"
)

var (
	metricsRequest = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapshare",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "status"})

	metricsRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapshare",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
	}, []string{"route"})
)

func init() {
	debug.Registry().MustRegister(metricsRequest, metricsRequestDuration)
}

// Server routes share traffic to the upload, chunk, and retrieval
// services and applies per-IP and global admission control.
type Server struct {
	cfg     types.Config
	files   *upload.Service
	chunks  *chunk.Manager
	shares  *retrieve.Service
	limiter ratelimit.Limiter

	// global caps total ingress across all clients. nil disables it.
	global *rate.Limiter

	mux *http.ServeMux
}

// NewServer wires the HTTP routes.
func NewServer(cfg types.Config, files *upload.Service, chunks *chunk.Manager, shares *retrieve.Service, limiter ratelimit.Limiter) *Server {
	s := &Server{
		cfg:     cfg,
		files:   files,
		chunks:  chunks,
		shares:  shares,
		limiter: limiter,
		mux:     http.NewServeMux(),
	}
	if cfg.RateLimit.GlobalRPS > 0 {
		s.global = rate.NewLimiter(rate.Limit(cfg.RateLimit.GlobalRPS), cfg.RateLimit.GlobalBurst)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /share/file/", s.shareFile)
	s.mux.HandleFunc("GET /share/select/", s.getCodeFile)
	s.mux.HandleFunc("POST /share/select/", s.selectFile)
	s.mux.HandleFunc("GET /share/download", s.downloadFile)
	s.mux.HandleFunc("POST /share/user/files/", s.listUserFiles)
	s.mux.HandleFunc("DELETE /share/file/user_delete", s.deleteUserFile)

	s.mux.HandleFunc("POST /chunk/upload/init/", s.initChunkUpload)
	s.mux.HandleFunc("POST /chunk/upload/chunk/{uploadId}/{chunkIndex}", s.uploadChunk)
	s.mux.HandleFunc("POST /chunk/upload/complete/{uploadId}", s.completeUpload)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.global != nil && !s.global.Allow() {
		writeError(w, apierr.RateLimited("server is busy, retry later"))
		return
	}

	ctx, reqID := reqcontext.WithUUID(r.Context())
	w.Header().Set(reqcontext.RequestHeader, reqID)
	r = r.WithContext(ctx)

	rec := &responseRecorder{ResponseWriter: w}
	s.mux.ServeHTTP(rec, r)
	if rec.statusCode == 0 {
		rec.statusCode = http.StatusOK
	}

	route := routeLabel(r)
	metricsRequest.WithLabelValues(route, strconv.Itoa(rec.statusCode)).Inc()
	metricsRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	logger.Debug().
		Str("request_id", reqID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.statusCode).
		Dur("duration", time.Since(start)).
		Msg("request")
}

// routeLabel collapses parameterized paths so chunk uploads do not
// explode metric cardinality.
func routeLabel(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/chunk/upload/chunk/"):
		path = "/chunk/upload/chunk/"
	case strings.HasPrefix(path, "/chunk/upload/complete/"):
		path = "/chunk/upload/complete/"
	}
	return r.Method + " " + path
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}

// admit checks the per-IP bucket before the handler runs. The event is
// recorded separately, after the request resolves.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, bucket string) bool {
	ok, err := s.limiter.Allowed(r.Context(), bucket, getClientIP(r))
	if err != nil {
		logger.Warn().Err(err).Str("bucket", bucket).Msg("rate limit check failed")
		return true
	}
	if !ok {
		ratelimit.RecordRejection(bucket)
		writeError(w, apierr.RateLimited("too many requests, retry later"))
		return false
	}
	return true
}

func (s *Server) record(r *http.Request, bucket string) {
	if err := s.limiter.Record(r.Context(), bucket, getClientIP(r)); err != nil {
		logger.Warn().Err(err).Str("bucket", bucket).Msg("failed to record rate limit event")
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs, take the first.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
