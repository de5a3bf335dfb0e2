package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_heartbeats_total",
		Help: "Heartbeats received by result",
	}, []string{"result"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_presence_transitions_total",
		Help: "Online/offline transitions by direction and reason",
	}, []string{"to", "reason"})

	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_presence_sweeps_total",
		Help: "Presence sweeps by outcome",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "complab_presence_sweep_duration_seconds",
		Help:    "Presence sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SweepItemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "complab_presence_sweep_item_failures_total",
		Help: "Computers that failed to transition during a sweep",
	})

	UnlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_unlocks_total",
		Help: "Unlock and lock operations by path and result",
	}, []string{"path", "result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_events_published_total",
		Help: "Real-time events published by event name and status",
	}, []string{"event", "status"})

	WebsocketClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "complab_websocket_clients",
		Help: "Connected websocket clients by hub",
	}, []string{"hub"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complab_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "complab_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
