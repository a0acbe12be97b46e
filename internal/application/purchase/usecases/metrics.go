package usecases

import (
	"context"
	"time"

	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

// Metrics receives purchase lifecycle events. SettlementFailed is the
// operator alert channel for transactions closed without a token transfer.
type Metrics interface {
	PurchaseCreated(variant vo.Variant)
	Settled(variant vo.Variant)
	SettlementFailed(variant vo.Variant)
	Expired(variant vo.Variant, released bool)
	LedgerQueryFailed(variant vo.Variant)
	ObserveTick(duration time.Duration)
}

// TransactionRunner runs fn inside one store transaction.
type TransactionRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type nopMetrics struct{}

// NewNopMetrics returns a Metrics that discards everything.
func NewNopMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) PurchaseCreated(vo.Variant) {}
func (nopMetrics) Settled(vo.Variant) {}
func (nopMetrics) SettlementFailed(vo.Variant) {}
func (nopMetrics) Expired(vo.Variant, bool) {}
func (nopMetrics) LedgerQueryFailed(vo.Variant) {}
func (nopMetrics) ObserveTick(time.Duration) {}
