package ratelimit

import (
	"github.com/LeeDigitalWorks/zapshare/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsTotal tracks events recorded per bucket.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapshare",
		Subsystem: "ratelimit",
		Name:      "events_total",
		Help:      "Total number of events recorded per rate limit bucket",
	}, []string{"bucket"})

	// RejectionsTotal tracks requests refused admission per bucket.
	RejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapshare",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of rate-limited requests per bucket",
	}, []string{"bucket"})
)

func init() {
	debug.Registry().MustRegister(
		EventsTotal,
		RejectionsTotal,
	)
}

func recordEvent(bucket string) {
	EventsTotal.WithLabelValues(bucket).Inc()
}

// RecordRejection counts a refused request. Called by the HTTP layer when
// Allowed returns false.
func RecordRejection(bucket string) {
	RejectionsTotal.WithLabelValues(bucket).Inc()
}
