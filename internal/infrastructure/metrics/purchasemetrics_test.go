package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

func TestPurchaseMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPurchaseMetrics(reg)

	m.PurchaseCreated(vo.VariantUtxo)
	m.PurchaseCreated(vo.VariantUtxo)
	m.PurchaseCreated(vo.VariantAccount)
	m.Settled(vo.VariantAccount)
	m.SettlementFailed(vo.VariantUtxo)
	m.Expired(vo.VariantUtxo, true)
	m.Expired(vo.VariantAccount, false)
	m.LedgerQueryFailed(vo.VariantUtxo)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues(vo.VariantUtxo.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues(vo.VariantAccount.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settled.WithLabelValues(vo.VariantAccount.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementFailed.WithLabelValues(vo.VariantUtxo.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expired.WithLabelValues(vo.VariantUtxo.String(), "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expired.WithLabelValues(vo.VariantAccount.String(), "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerQueryFailed.WithLabelValues(vo.VariantUtxo.String())))
}

func TestPurchaseMetrics_TickHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPurchaseMetrics(reg)

	m.ObserveTick(200 * time.Millisecond)
	m.ObserveTick(3 * time.Second)

	count, err := testutil.GatherAndCount(reg, "purchase_reconcile_tick_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewPurchaseMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPurchaseMetrics(reg)
	assert.Panics(t, func() { NewPurchaseMetrics(reg) })
}
