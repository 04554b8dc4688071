package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TeamCartMetrics tracks command contention, gateway calls and projection
// health. A nil receiver is a no-op so services can run without a registry.
type TeamCartMetrics struct {
	conflicts          *prometheus.CounterVec
	retries            *prometheus.CounterVec
	gatewayCalls       *prometheus.CounterVec
	gatewayLatency     prometheus.Histogram
	projectionFailures *prometheus.CounterVec
	transitions        *prometheus.CounterVec
}

func NewTeamCartMetrics(reg prometheus.Registerer) *TeamCartMetrics {
	if reg == nil {
		return &TeamCartMetrics{}
	}
	m := &TeamCartMetrics{
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamcart_command_conflicts_total",
			Help: "Optimistic concurrency conflicts per command.",
		}, []string{"command"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamcart_command_retries_total",
			Help: "Command attempts retried after a version conflict.",
		}, []string{"command"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamcart_gateway_calls_total",
			Help: "Payment gateway intent creations by outcome.",
		}, []string{"outcome"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teamcart_gateway_latency_seconds",
			Help:    "Latency of payment gateway intent creation.",
			Buckets: prometheus.DefBuckets,
		}),
		projectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamcart_projection_failures_total",
			Help: "Realtime view publish or read failures.",
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamcart_status_transitions_total",
			Help: "Cart status transitions by target status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.conflicts, m.retries, m.gatewayCalls, m.gatewayLatency, m.projectionFailures, m.transitions)
	return m
}

func (m *TeamCartMetrics) IncConflict(command string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(command)).Inc()
}

func (m *TeamCartMetrics) IncRetry(command string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(command)).Inc()
}

// ObserveGateway records one gateway call; outcome is "ok", "error" or "timeout".
func (m *TeamCartMetrics) ObserveGateway(outcome string, took time.Duration) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.gatewayLatency.Observe(took.Seconds())
}

func (m *TeamCartMetrics) IncProjectionFailure(op string) {
	if m == nil || m.projectionFailures == nil {
		return
	}
	m.projectionFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *TeamCartMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}
