// Package metrics exposes the Prometheus collectors of the allocation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "allocation"

// Metrics owns a registry and the collectors registered on it.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	invitationsResolved *prometheus.CounterVec
	groupTransitions    *prometheus.CounterVec
	decisions           *prometheus.CounterVec
	decisionLatency     *prometheus.HistogramVec
	eventsEmitted       *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	realtimeConnections prometheus.Gauge
}

// New creates a registry with the process and Go collectors plus the
// engine's own collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invitationsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invitations_resolved_total",
				Help:      "Invitations resolved, by final status",
			},
			[]string{"status", "reason_code"},
		),
		groupTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "group_transitions_total",
				Help:      "Group lifecycle transitions, by target status",
			},
			[]string{"status"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Allocation decisions, by outcome",
			},
			[]string{"decision"},
		),
		decisionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_latency_seconds",
				Help:      "Time a project waited on one faculty before the decision",
				Buckets:   prometheus.ExponentialBuckets(60, 4, 8), // 1m to ~11d
			},
			[]string{"decision"},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Events accepted by the dispatcher",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Events dropped because the dispatcher queue was full",
			},
			[]string{"type"},
		),
		realtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Open websocket connections",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.invitationsResolved,
		m.groupTransitions,
		m.decisions,
		m.decisionLatency,
		m.eventsEmitted,
		m.eventsDropped,
		m.realtimeConnections,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) InvitationResolved(status, reasonCode string) {
	if m == nil {
		return
	}
	m.invitationsResolved.WithLabelValues(status, reasonCode).Inc()
}

func (m *Metrics) GroupTransition(status string) {
	if m == nil {
		return
	}
	m.groupTransitions.WithLabelValues(status).Inc()
}

// Decision records one cascade decision and how long the project waited for it.
func (m *Metrics) Decision(decision string, waited time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
	if waited >= 0 {
		m.decisionLatency.WithLabelValues(decision).Observe(waited.Seconds())
	}
}

func (m *Metrics) EventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped(eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.realtimeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.realtimeConnections.Dec()
}
