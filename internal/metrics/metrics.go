package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_login_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"}, // "success" or "failure"
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"channel"}, // "websocket" or "http"
	)

	AutoReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_auto_replies_total",
			Help: "Total simulated replies",
		},
		[]string{"outcome"}, // sent, dropped, cancelled, failed
	)

	ToneAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_tone_adjustments_total",
			Help: "Total tone adjustment attempts",
		},
		[]string{"tone", "outcome"},
	)

	ToneAdjustmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "messenger_tone_adjustment_duration_seconds",
			Help:    "Language model call latency",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10},
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_websocket_connections",
			Help: "Open realtime connections",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_store_latency_seconds",
			Help:    "Store ping latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend"},
	)
)
