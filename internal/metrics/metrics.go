package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwise_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwise_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatwise_chats_created_total",
			Help: "Total chats created",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatwise_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ReadReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwise_read_receipts_total",
			Help: "Read receipts issued",
		},
		[]string{"result"}, // "ok" or "error"
	)

	// Live query metrics
	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatwise_live_subscriptions",
			Help: "Open live query subscriptions",
		},
	)

	SubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwise_subscription_errors_total",
			Help: "Live query failures",
		},
		[]string{"topic"}, // "chats" or "messages"
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatwise_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)
