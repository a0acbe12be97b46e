// Package metrics exports purchase and HTTP metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iscoin/purchase/internal/application/purchase/usecases"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

const namespace = "purchase"

// PurchaseMetrics implements usecases.Metrics with Prometheus collectors.
type PurchaseMetrics struct {
	created           *prometheus.CounterVec
	settled           *prometheus.CounterVec
	settlementFailed  *prometheus.CounterVec
	expired           *prometheus.CounterVec
	ledgerQueryFailed *prometheus.CounterVec
	tickDuration      prometheus.Histogram
}

// NewPurchaseMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	factory := promauto.With(reg)

	return &PurchaseMetrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Purchase transactions created",
		}, []string{"variant"}),
		settled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_settled_total",
			Help:      "Purchase transactions settled",
		}, []string{"variant"}),
		settlementFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Settled purchases whose token transfer failed and need manual resolution",
		}, []string{"variant"}),
		expired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_expired_total",
			Help:      "Purchase transactions closed unpaid or partially paid",
		}, []string{"variant", "slot_released"}),
		ledgerQueryFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_query_failures_total",
			Help:      "Failed chain queries during reconciliation",
		}, []string{"variant"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_tick_duration_seconds",
			Help:      "Duration of one reconciliation tick",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

var _ usecases.Metrics = (*PurchaseMetrics)(nil)

func (m *PurchaseMetrics) PurchaseCreated(variant vo.Variant) {
	m.created.WithLabelValues(variant.String()).Inc()
}

func (m *PurchaseMetrics) Settled(variant vo.Variant) {
	m.settled.WithLabelValues(variant.String()).Inc()
}

func (m *PurchaseMetrics) SettlementFailed(variant vo.Variant) {
	m.settlementFailed.WithLabelValues(variant.String()).Inc()
}

func (m *PurchaseMetrics) Expired(variant vo.Variant, released bool) {
	m.expired.WithLabelValues(variant.String(), strconv.FormatBool(released)).Inc()
}

func (m *PurchaseMetrics) LedgerQueryFailed(variant vo.Variant) {
	m.ledgerQueryFailed.WithLabelValues(variant.String()).Inc()
}

func (m *PurchaseMetrics) ObserveTick(duration time.Duration) {
	m.tickDuration.Observe(duration.Seconds())
}
