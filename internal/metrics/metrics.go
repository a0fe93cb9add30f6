// Package metrics holds the Prometheus collectors of the settlement service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chipereganyu"

var (
	SettlementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "transitions_total",
		Help:      "Settlement state transitions by direction, rail and target status.",
	}, []string{"direction", "rail", "status"})

	ReconciliationRequired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "reconciliation_required_total",
		Help:      "Settlements flagged for manual reconciliation.",
	})

	ReserveMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reserve",
		Name:      "movements_amount_total",
		Help:      "Reserve ledger movements in minor currency units.",
	}, []string{"type"})

	ReserveDivergence = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reserve",
		Name:      "cache_divergence",
		Help:      "Cached reserve balance minus ledger balance at the last audit.",
	})

	Disputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispute",
		Name:      "events_total",
		Help:      "Disputes filed and resolved.",
	}, []string{"status"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "deliveries_total",
		Help:      "Notification delivery attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Payment gateway request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "outcome"})
)

// ObserveGateway records the latency of one gateway call.
func ObserveGateway(operation, outcome string, start time.Time) {
	GatewayLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
