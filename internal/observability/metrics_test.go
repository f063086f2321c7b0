package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordCommand("send_group_message", "ok", 0.01)
	metrics.RecordCommand("send_group_message", "NOT_MEMBER", 0.002)
	metrics.EventDelivered("new_group_message")
	metrics.EventDelivered("new_group_message")
	metrics.EventDropped("new_group_message")
	metrics.MessagePersisted("group")
	metrics.MentionsSent(2)
	metrics.MentionsSent(0)
	metrics.ConnectionOpened()
	metrics.ConnectionOpened()
	metrics.ConnectionClosed(12)
	metrics.RecordError("gateway", "decode")

	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("send_group_message", "ok")); got != 1 {
		t.Errorf("ok commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EventsDelivered.WithLabelValues("new_group_message")); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.MentionsResolved); got != 2 {
		t.Errorf("mentions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}

	expected := `
		# HELP huddle_events_dropped_total Total number of server events dropped for slow or closed connections
		# TYPE huddle_events_dropped_total counter
		huddle_events_dropped_total{event="new_group_message"} 1
	`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "huddle_events_dropped_total"); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordCommand("ping", "ok", 0)
	metrics.EventDelivered("pong")
	metrics.EventDropped("pong")
	metrics.MessagePersisted("direct")
	metrics.MentionsSent(1)
	metrics.ConnectionOpened()
	metrics.ConnectionClosed(1)
	metrics.RecordError("chat", "store")
}

func TestNewMetricsWithoutRegistry(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.RecordCommand("ping", "ok", 0)
	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("ping", "ok")); got != 1 {
		t.Fatalf("commands = %v, want 1", got)
	}
}
