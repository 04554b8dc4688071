package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTeamCartMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTeamCartMetrics(reg)
	m.IncConflict("lock")
	m.IncConflict("lock")
	m.IncRetry("lock")
	m.ObserveGateway("timeout", 2*time.Second)
	m.IncProjectionFailure("publish")
	m.IncTransition("expired")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "teamcart_command_conflicts_total", "command", "lock"); err != nil || got != 2 {
		t.Fatalf("expected 2 conflicts, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "teamcart_gateway_calls_total", "outcome", "timeout"); err != nil || got != 1 {
		t.Fatalf("expected 1 gateway timeout, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "teamcart_projection_failures_total", "op", "publish"); err != nil || got != 1 {
		t.Fatalf("expected 1 projection failure, got %f (%v)", got, err)
	}
}

func TestNilTeamCartMetricsIsNoop(t *testing.T) {
	var m *TeamCartMetrics
	m.IncConflict("x")
	m.ObserveGateway("ok", time.Millisecond)
	NewTeamCartMetrics(nil).IncRetry("x")
}
