// Package metrics exposes process-level session counters fed from the event bus.
package metrics

import (
	"context"
	"net/http"

	"oneclick/pkg/bus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oneclick"

// Metrics owns its registry so tests and multiple services never collide on
// the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	sessionsClosed  *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	intentsTotal    *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	routeFailures   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Sessions currently open",
			},
			[]string{"channel"},
		),
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_opened_total",
				Help:      "Sessions opened since start",
			},
			[]string{"channel"},
		),
		sessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_closed_total",
				Help:      "Sessions closed since start, by close reason",
			},
			[]string{"channel", "reason"},
		),
		sessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Lifetime of closed sessions",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"channel"},
		),
		intentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Inbound lines routed, by intent",
			},
			[]string{"channel", "intent"},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Reply lines delivered to peers",
			},
			[]string{"channel"},
		),
		routeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_failures_total",
				Help:      "Routed lines whose replies were cut short",
			},
			[]string{"channel", "intent"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsActive,
		m.sessionsTotal,
		m.sessionsClosed,
		m.sessionDuration,
		m.intentsTotal,
		m.messagesSent,
		m.routeFailures,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Run records events until ctx is done or the bus closes.
func (m *Metrics) Run(ctx context.Context, events *bus.Bus) {
	stream, unsubscribe := events.Subscribe(ctx, 256)
	defer unsubscribe()

	for event := range stream {
		m.Observe(event)
	}
}

// Observe records a single event.
func (m *Metrics) Observe(event bus.Event) {
	switch event.Type {
	case bus.EventSessionOpened:
		m.sessionsActive.WithLabelValues(event.Channel).Inc()
		m.sessionsTotal.WithLabelValues(event.Channel).Inc()
	case bus.EventSessionClosed:
		m.sessionsActive.WithLabelValues(event.Channel).Dec()
		m.sessionsClosed.WithLabelValues(event.Channel, event.Reason).Inc()
		m.sessionDuration.WithLabelValues(event.Channel).Observe(event.Duration.Seconds())
	case bus.EventIntentRouted:
		m.intentsTotal.WithLabelValues(event.Channel, event.Intent).Inc()
		m.messagesSent.WithLabelValues(event.Channel).Add(float64(event.Messages))
	case bus.EventRouteFailed:
		m.intentsTotal.WithLabelValues(event.Channel, event.Intent).Inc()
		m.messagesSent.WithLabelValues(event.Channel).Add(float64(event.Messages))
		m.routeFailures.WithLabelValues(event.Channel, event.Intent).Inc()
	}
}
