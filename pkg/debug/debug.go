// Package debug serves operational endpoints: Prometheus metrics,
// pprof profiles, and health/readiness probes.
package debug

import (
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	// Global registry for custom metrics
	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

func IsReady() bool {
	return ready.Load()
}

// Registry returns the Prometheus registry for registering custom metrics.
// Metrics registered here are exported on /metrics alongside the default
// process and Go runtime metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/allocs/", pprof.Handler("allocs"))
	mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
	mux.Handle("/debug/heap/", pprof.Handler("heap"))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	return mux
}
