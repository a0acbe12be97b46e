// Package ledger is the authoritative record of purchase transactions: it
// creates them, looks up the active one per purchaser and applies observed
// payments.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/shared/biztime"
	apperrors "github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
)

type Config struct {
	TimeLimit       time.Duration
	UtxoCurrency    string
	AccountCurrency string
	DepositAccount  string
	// Now overrides the clock, defaulting to biztime.NowUTC.
	Now func() time.Time
}

type CreateTransactionCommand struct {
	Variant         vo.Variant
	ExternalAccount string
	PurchaseAmount  decimal.Decimal
	// Slot is required for the utxo variant and ignored otherwise.
	Slot *purchase.SlotRef
	// Rate, when set, is a rate already obtained from Rate for this variant.
	Rate decimal.Decimal
}

type Ledger struct {
	repo   purchase.TransactionRepository
	rates  ratesource.RateSource
	config Config
	logger logger.Interface
	now    func() time.Time
}

func NewLedger(
	repo purchase.TransactionRepository,
	rates ratesource.RateSource,
	config Config,
	logger logger.Interface,
) *Ledger {
	now := config.Now
	if now == nil {
		now = biztime.NowUTC
	}
	return &Ledger{
		repo:   repo,
		rates:  rates,
		config: config,
		logger: logger,
		now:    now,
	}
}

// CurrencyOf returns the payment currency of a variant.
func (l *Ledger) CurrencyOf(variant vo.Variant) string {
	if variant == vo.VariantUtxo {
		return l.config.UtxoCurrency
	}
	return l.config.AccountCurrency
}

// Rate reads the current exchange rate of the variant's currency. A missing
// rate is a validation error.
func (l *Ledger) Rate(ctx context.Context, variant vo.Variant) (decimal.Decimal, error) {
	currency := l.CurrencyOf(variant)
	rate, err := l.rates.GetExchangeRate(ctx, currency)
	if err != nil {
		if errors.Is(err, ratesource.ErrRateNotFound) {
			return decimal.Zero, apperrors.NewValidationError("invalid exchange rate", currency)
		}
		l.logger.Errorw("failed to get exchange rate", "currency", currency, "error", err)
		return decimal.Zero, apperrors.NewUnavailableError("exchange rate unavailable")
	}
	return rate, nil
}

// CreateTransaction records a new active purchase. The rate of the variant's
// currency is read once, here or by the caller through Rate, and fixes the
// amount due for the transaction's lifetime.
func (l *Ledger) CreateTransaction(ctx context.Context, cmd CreateTransactionCommand) (*purchase.Transaction, error) {
	existing, err := l.repo.GetActive(ctx, cmd.Variant, cmd.ExternalAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to check active transaction: %w", err)
	}
	if existing != nil {
		return nil, apperrors.NewConflictError(purchase.ErrActiveTransactionExists.Error())
	}

	rate := cmd.Rate
	if rate.IsZero() {
		if rate, err = l.Rate(ctx, cmd.Variant); err != nil {
			return nil, err
		}
	}

	params := purchase.NewTransactionParams{
		ExternalAccount: cmd.ExternalAccount,
		PurchaseAmount:  cmd.PurchaseAmount,
		Rate:            rate,
		TimeLimit:       l.config.TimeLimit,
		Now:             l.now(),
	}

	var tx *purchase.Transaction
	switch cmd.Variant {
	case vo.VariantUtxo:
		if cmd.Slot == nil {
			return nil, fmt.Errorf("utxo purchase requires an address slot")
		}
		tx, err = purchase.NewUtxoTransaction(params, *cmd.Slot)
	case vo.VariantAccount:
		tx, err = purchase.NewAccountTransaction(params, l.config.DepositAccount)
	default:
		return nil, apperrors.NewValidationError("invalid purchase variant", cmd.Variant.String())
	}
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	if err := l.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, purchase.ErrActiveTransactionExists) {
			return nil, apperrors.NewConflictError(purchase.ErrActiveTransactionExists.Error())
		}
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	l.logger.Infow("purchase transaction created",
		"id", tx.ID(),
		"variant", tx.Variant(),
		"external_account", tx.ExternalAccount(),
		"amount_due", tx.AmountDue().String(),
		"rate", rate.String(),
		"expires_at", tx.ExpiresAt(),
	)
	return tx, nil
}

// GetActiveTransaction returns nil when the purchaser has no active
// transaction of the variant.
func (l *Ledger) GetActiveTransaction(ctx context.Context, variant vo.Variant, externalAccount string) (*purchase.Transaction, error) {
	return l.repo.GetActive(ctx, variant, externalAccount)
}

func (l *Ledger) ListActive(ctx context.Context, variant vo.Variant) ([]*purchase.Transaction, error) {
	return l.repo.ListActive(ctx, variant)
}

// ApplyReceivedAmount raises the received amount and persists it. Decreases
// are ignored. It reports whether anything was written.
func (l *Ledger) ApplyReceivedAmount(ctx context.Context, tx *purchase.Transaction, amount decimal.Decimal) (bool, error) {
	previous := tx.AmountReceived()
	if !tx.ApplyReceivedAmount(amount, l.now()) {
		if amount.LessThan(previous) {
			l.logger.Warnw("ignoring decrease of received amount",
				"id", tx.ID(),
				"stored", previous.String(),
				"observed", amount.String(),
			)
		}
		return false, nil
	}
	if err := l.repo.UpdateAmountReceived(ctx, tx); err != nil {
		return false, fmt.Errorf("failed to update received amount: %w", err)
	}
	l.logger.Infow("received amount updated",
		"id", tx.ID(),
		"from", previous.String(),
		"to", amount.String(),
	)
	return true, nil
}

// Close persists a transition to inactive already applied to tx by Settle or
// Expire. Only one caller can close a given transaction; the others get false.
func (l *Ledger) Close(ctx context.Context, tx *purchase.Transaction) (bool, error) {
	if tx.IsActive() {
		return false, fmt.Errorf("transaction %s has not been settled or expired", tx.ID())
	}
	closed, err := l.repo.Close(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("failed to close transaction: %w", err)
	}
	return closed, nil
}

// RecordSettlementFailure stores the transfer error on a settled transaction
// so operators can find it.
func (l *Ledger) RecordSettlementFailure(ctx context.Context, tx *purchase.Transaction, cause error) error {
	tx.RecordSettlementFailure(cause.Error(), l.now())
	if err := l.repo.UpdateMetadata(ctx, tx); err != nil {
		return fmt.Errorf("failed to record settlement failure: %w", err)
	}
	return nil
}

// Now returns the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}
