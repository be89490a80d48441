package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContactPermissionTransitions counts workflow operations by action (request|approve|reject|revoke)
	// and outcome (ok|duplicate|rate_limited|not_found|conflict|invalid|error).
	ContactPermissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_contact_permission_transitions_total",
			Help: "Total number of contact permission workflow operations",
		},
		[]string{"action", "outcome"},
	)

	// ProfileResolutions counts secure profile reads by whether gated fields were disclosed
	// (included|withheld) or the read failed (error|rate_limited).
	ProfileResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_profile_resolutions_total",
			Help: "Total number of secure profile resolutions",
		},
		[]string{"contact"},
	)

	// RateLimitRejections counts throttled attempts per limiter scope.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_rate_limit_rejections_total",
			Help: "Total number of attempts rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	// SecurityLogWrites counts security log persistence results (ok|dropped|error).
	SecurityLogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_security_log_writes_total",
			Help: "Total number of security log entries processed",
		},
		[]string{"result"},
	)

	// RealtimeConnections tracks open change-feed websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepost_realtime_connections",
			Help: "Number of open realtime change feed connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradepost_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
