// Package metrics registers the Prometheus collectors shared by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marslife_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marslife_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	SocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marslife_socket_events_total",
		Help: "Inbound WebSocket events, labeled by event and outcome",
	}, []string{"event", "outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marslife_active_sessions",
		Help: "Open WebSocket sessions",
	})

	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marslife_generations_total",
		Help: "Design generations, labeled by final state",
	}, []string{"state"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marslife_generation_duration_seconds",
		Help:    "Time spent waiting for the image provider",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
	})

	CreditsSpent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marslife_credits_spent_total",
		Help: "Credits debited for successful generations",
	})

	CreditsPurchased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marslife_credits_purchased_total",
		Help: "Credits added by confirmed payments, labeled by package",
	}, []string{"package"})
)
