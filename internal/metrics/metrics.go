// Package metrics defines the Prometheus collectors exported by the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adx"

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// which keeps tests free of registry setup.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	Broadcasts        prometheus.Counter
	BroadcastFailures prometheus.Counter
	Sandboxes         *prometheus.GaugeVec
	SandboxOps        *prometheus.CounterVec
	Executions        *prometheus.CounterVec
	StreamEvents      *prometheus.CounterVec
	ChatExchanges     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_active_connections",
			Help:      "Number of live websocket connections.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_broadcasts_total",
			Help:      "Number of broadcast fan-outs.",
		}),
		BroadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_broadcast_failures_total",
			Help:      "Number of per-connection deliveries that failed during broadcast.",
		}),
		Sandboxes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sandboxes",
			Help:      "Number of registered sandboxes by status.",
		}, []string{"status"}),
		SandboxOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_operations_total",
			Help:      "Sandbox lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Sandbox command executions by status.",
		}, []string{"status"}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream events emitted by type.",
		}, []string{"type"}),
		ChatExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_exchanges_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ActiveConnections,
			m.Broadcasts,
			m.BroadcastFailures,
			m.Sandboxes,
			m.SandboxOps,
			m.Executions,
			m.StreamEvents,
			m.ChatExchanges,
		)
	}
	return m
}

// ConnectionOpened counts a registered websocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// ConnectionClosed counts an unregistered websocket connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// Broadcast records one fan-out and the number of failed deliveries.
func (m *Metrics) Broadcast(failures int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	m.BroadcastFailures.Add(float64(failures))
}

// SandboxTransition moves one sandbox between status gauges. Empty from or to
// means the record was inserted or removed.
func (m *Metrics) SandboxTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.Sandboxes.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.Sandboxes.WithLabelValues(to).Inc()
	}
}

// SandboxOp records a lifecycle operation and its outcome.
func (m *Metrics) SandboxOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.SandboxOps.WithLabelValues(operation, outcome).Inc()
}

// Execution records a finished command execution by status.
func (m *Metrics) Execution(status string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
}

// StreamEvent records an event delivered to a stream consumer.
func (m *Metrics) StreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// ChatExchange records a chat exchange by outcome.
func (m *Metrics) ChatExchange(outcome string) {
	if m == nil {
		return
	}
	m.ChatExchanges.WithLabelValues(outcome).Inc()
}
