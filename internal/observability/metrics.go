package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects chat engine metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordCommand("send_group_message", "ok", time.Since(start).Seconds())
type Metrics struct {
	// CommandCounter counts handled client commands.
	// Labels: command, status (ok or an error code)
	CommandCounter *prometheus.CounterVec

	// CommandDuration measures command handling latency in seconds.
	// Labels: command
	CommandDuration *prometheus.HistogramVec

	// EventsDelivered counts frames queued on live connections.
	// Labels: event
	EventsDelivered *prometheus.CounterVec

	// EventsDropped counts frames discarded because a connection's send
	// buffer was full or closed.
	// Labels: event
	EventsDropped *prometheus.CounterVec

	// MessagesPersisted counts stored messages.
	// Labels: kind (group|direct)
	MessagesPersisted *prometheus.CounterVec

	// MentionsResolved counts mention notifications produced.
	MentionsResolved prometheus.Counter

	// ActiveConnections tracks authenticated websocket connections.
	ActiveConnections prometheus.Gauge

	// ConnectionDuration measures websocket lifetime in seconds.
	ConnectionDuration prometheus.Histogram

	// ErrorCounter tracks errors by component and error type.
	// Labels: component, error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// creates unregistered collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_commands_total",
				Help: "Total number of client commands by type and status",
			},
			[]string{"command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "huddle_command_duration_seconds",
				Help:    "Duration of client command handling in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"command"},
		),
		EventsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_events_delivered_total",
				Help: "Total number of server events queued on live connections",
			},
			[]string{"event"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_events_dropped_total",
				Help: "Total number of server events dropped for slow or closed connections",
			},
			[]string{"event"},
		),
		MessagesPersisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_messages_persisted_total",
				Help: "Total number of persisted messages by kind",
			},
			[]string{"kind"},
		),
		MentionsResolved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "huddle_mentions_total",
				Help: "Total number of mention notifications produced",
			},
		),
		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "huddle_active_connections",
				Help: "Current number of authenticated connections",
			},
		),
		ConnectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "huddle_connection_duration_seconds",
				Help:    "Duration of websocket connections in seconds",
				Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
			},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huddle_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordCommand records the outcome and latency of a client command.
func (m *Metrics) RecordCommand(command, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CommandCounter.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(durationSeconds)
}

// EventDelivered counts a frame queued for a connection.
func (m *Metrics) EventDelivered(event string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(event).Inc()
}

// EventDropped counts a frame that could not be queued.
func (m *Metrics) EventDropped(event string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(event).Inc()
}

// MessagePersisted counts a stored message of the given kind.
func (m *Metrics) MessagePersisted(kind string) {
	if m == nil {
		return
	}
	m.MessagesPersisted.WithLabelValues(kind).Inc()
}

// MentionsSent adds n mention notifications.
func (m *Metrics) MentionsSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MentionsResolved.Add(float64(n))
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge and records its lifetime.
func (m *Metrics) ConnectionClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
	m.ConnectionDuration.Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
