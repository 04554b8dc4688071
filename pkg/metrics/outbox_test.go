package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObservePublished("teamcart_locked", 2*time.Second)
	m.ObservePublished("teamcart_locked", 0)
	m.IncRetried("teamcart_converted")
	m.IncDeadLettered("max_attempts")

	if got := testutil.ToFloat64(m.published.WithLabelValues("teamcart_locked")); got != 2 {
		t.Fatalf("expected published=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.retried.WithLabelValues("teamcart_converted")); got != 1 {
		t.Fatalf("expected retried=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.deadLettered.WithLabelValues("max_attempts")); got != 1 {
		t.Fatalf("expected dead_lettered=1, got %f", got)
	}
	if got := testutil.CollectAndCount(m.lag); got != 1 {
		t.Fatalf("expected one lag series, got %d", got)
	}
}

func TestNilOutboxMetricsAreNoops(t *testing.T) {
	var m *OutboxMetrics
	m.ObservePublished("x", time.Second)
	m.IncRetried("x")
	m.IncDeadLettered("x")

	empty := NewOutboxMetrics(nil)
	empty.ObservePublished("x", time.Second)
}
