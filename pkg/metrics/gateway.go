package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks escrow gateway calls against the payment processor.
type GatewayMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_gateway_calls_total",
		Help: "Escrow gateway commands by outcome.",
	}, []string{"command", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_gateway_call_duration_seconds",
		Help:    "Duration of escrow gateway commands in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	reg.MustRegister(calls, duration)
	return &GatewayMetrics{calls: calls, duration: duration}
}

// ObserveCall records one gateway command invocation.
func (g *GatewayMetrics) ObserveCall(command, outcome string, duration time.Duration) {
	if g == nil || g.calls == nil {
		return
	}
	g.calls.WithLabelValues(normalizeLabel(command), normalizeLabel(outcome)).Inc()
	g.duration.WithLabelValues(normalizeLabel(command)).Observe(duration.Seconds())
}
