package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/shared/goroutine"
	"github.com/iscoin/purchase/internal/shared/logger"
)

const (
	defaultConcurrency = 4
	defaultCallTimeout = 15 * time.Second
	// Allowance for chain block times running behind the local clock.
	historyLookback = 5 * time.Minute
)

type ReconcileConfig struct {
	// Concurrency bounds how many transactions are refreshed at once.
	Concurrency int
	// CallTimeout bounds every ledger client call.
	CallTimeout time.Duration
	// TokenCode is the currency code of the purchased token.
	TokenCode string
}

// ReconcilePurchasesUseCase refreshes every active transaction from its chain
// and settles or expires it. One Execute is one tick.
type ReconcilePurchasesUseCase struct {
	ledger        *ledger.Ledger
	allocator     addressalloc.AddressAllocator
	deriver       addressalloc.AddressDeriver
	utxoClient    chain.UtxoLedgerClient
	accountClient chain.AccountLedgerClient
	submitter     chain.TransferSubmitter
	txRunner      TransactionRunner
	metrics       Metrics
	config        ReconcileConfig
	logger        logger.Interface
}

func NewReconcilePurchasesUseCase(
	ledger *ledger.Ledger,
	allocator addressalloc.AddressAllocator,
	deriver addressalloc.AddressDeriver,
	utxoClient chain.UtxoLedgerClient,
	accountClient chain.AccountLedgerClient,
	submitter chain.TransferSubmitter,
	txRunner TransactionRunner,
	metrics Metrics,
	config ReconcileConfig,
	logger logger.Interface,
) *ReconcilePurchasesUseCase {
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	return &ReconcilePurchasesUseCase{
		ledger:        ledger,
		allocator:     allocator,
		deriver:       deriver,
		utxoClient:    utxoClient,
		accountClient: accountClient,
		submitter:     submitter,
		txRunner:      txRunner,
		metrics:       metrics,
		config:        config,
		logger:        logger,
	}
}

// Execute runs one reconciliation tick and returns how many transactions
// were closed. Failures of single transactions are logged and left for the
// next tick; only a failure to list transactions is returned.
func (uc *ReconcilePurchasesUseCase) Execute(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { uc.metrics.ObserveTick(time.Since(start)) }()

	var closed atomic.Int64
	var listErr error

	for _, variant := range []vo.Variant{vo.VariantUtxo, vo.VariantAccount} {
		txs, err := uc.ledger.ListActive(ctx, variant)
		if err != nil {
			uc.logger.Errorw("failed to list active transactions", "variant", variant, "error", err)
			if listErr == nil {
				listErr = fmt.Errorf("failed to list active %s transactions: %w", variant, err)
			}
			continue
		}
		if len(txs) == 0 {
			continue
		}

		uc.logger.Debugw("reconciling transactions", "variant", variant, "count", len(txs))

		var received map[string]decimal.Decimal
		switch variant {
		case vo.VariantUtxo:
			received = uc.fetchUtxoReceived(ctx, txs)
		case vo.VariantAccount:
			received = uc.fetchAccountReceived(ctx, txs)
		}

		g := new(errgroup.Group)
		g.SetLimit(uc.config.Concurrency)
		for _, tx := range txs {
			tx := tx
			amount, ok := received[tx.ID()]
			if !ok {
				// refresh failed; deciding on stale data could release a paid slot
				continue
			}
			g.Go(func() error {
				defer goroutine.Recover(uc.logger, "reconcile-transaction")
				if uc.reconcileOne(ctx, tx, amount) {
					closed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	count := int(closed.Load())
	if count > 0 {
		uc.logger.Infow("reconciliation tick completed", "closed", count, "duration", time.Since(start))
	}
	return count, listErr
}

type observedAmount struct {
	id     string
	amount decimal.Decimal
}

// fetchUtxoReceived queries the received balance of each transaction's
// address. Transactions whose query failed are absent from the result.
func (uc *ReconcilePurchasesUseCase) fetchUtxoReceived(ctx context.Context, txs []*purchase.Transaction) map[string]decimal.Decimal {
	results := make(chan observedAmount, len(txs))

	g := new(errgroup.Group)
	g.SetLimit(uc.config.Concurrency)
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			defer goroutine.Recover(uc.logger, "fetch-utxo-balance")

			address, err := uc.deriver.Derive(tx.Utxo().Slot)
			if err != nil {
				uc.logger.Errorw("failed to derive address", "id", tx.ID(), "slot", tx.Utxo().Slot.String(), "error", err)
				return nil
			}

			callCtx, cancel := context.WithTimeout(ctx, uc.config.CallTimeout)
			defer cancel()
			balance, err := uc.utxoClient.GetReceivedBalance(callCtx, address)
			if err != nil {
				uc.metrics.LedgerQueryFailed(vo.VariantUtxo)
				uc.logger.Warnw("failed to get received balance, retrying next tick",
					"id", tx.ID(),
					"address", address,
					"error", err,
				)
				return nil
			}
			results <- observedAmount{id: tx.ID(), amount: balance}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	received := make(map[string]decimal.Decimal, len(txs))
	for r := range results {
		received[r.id] = r.amount
	}
	return received
}

// fetchAccountReceived loads the transfer history of each deposit account
// once and sums, per transaction, the transfers carrying its memo in the
// chain currency. The sum is recomputed from full history every tick. The
// history starts at the oldest active purchase on the account, less
// historyLookback.
func (uc *ReconcilePurchasesUseCase) fetchAccountReceived(ctx context.Context, txs []*purchase.Transaction) map[string]decimal.Decimal {
	currency := uc.ledger.CurrencyOf(vo.VariantAccount)

	oldest := make(map[string]time.Time)
	for _, tx := range txs {
		deposit := tx.Account().DepositAccount
		if since, ok := oldest[deposit]; !ok || tx.CreatedAt().Before(since) {
			oldest[deposit] = tx.CreatedAt()
		}
	}

	history := make(map[string][]chain.Transfer, len(oldest))
	for deposit, since := range oldest {
		callCtx, cancel := context.WithTimeout(ctx, uc.config.CallTimeout)
		transfers, err := uc.accountClient.GetIncomingTransfers(callCtx, deposit, since.Add(-historyLookback))
		cancel()
		if err != nil {
			uc.metrics.LedgerQueryFailed(vo.VariantAccount)
			uc.logger.Warnw("failed to get incoming transfers, retrying next tick",
				"deposit_account", deposit,
				"error", err,
			)
			continue
		}
		history[deposit] = transfers
	}

	received := make(map[string]decimal.Decimal, len(txs))
	for _, tx := range txs {
		transfers, ok := history[tx.Account().DepositAccount]
		if !ok {
			continue
		}
		received[tx.ID()] = SumMatchingTransfers(transfers, tx.Account().DepositAccount, tx.Account().Memo, currency)
	}
	return received
}

// SumMatchingTransfers adds up the transfers to depositAccount whose memo and
// currency match. Anything else on the account belongs to someone else.
func SumMatchingTransfers(transfers []chain.Transfer, depositAccount, memo, currency string) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range transfers {
		if t.To != depositAccount || t.Memo != memo || t.CurrencyCode != currency {
			continue
		}
		if !t.Amount.IsPositive() {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum
}

// reconcileOne applies the observed amount and the settlement policy to one
// transaction. It reports whether this call closed the transaction.
func (uc *ReconcilePurchasesUseCase) reconcileOne(ctx context.Context, tx *purchase.Transaction, received decimal.Decimal) bool {
	if _, err := uc.ledger.ApplyReceivedAmount(ctx, tx, received); err != nil {
		if errors.Is(err, purchase.ErrVersionConflict) {
			uc.logger.Infow("transaction modified concurrently, retrying next tick", "id", tx.ID())
			return false
		}
		uc.logger.Errorw("failed to apply received amount", "id", tx.ID(), "error", err)
		return false
	}

	decision, err := uc.applyPolicy(ctx, tx)
	if err != nil {
		uc.logger.Errorw("failed to apply settlement policy",
			"id", tx.ID(),
			"decision", decision.String(),
			"error", err,
		)
		return false
	}
	return decision != purchase.DecisionKeep
}

// applyPolicy settles or expires tx when due. It returns DecisionKeep when
// nothing happened, including when another worker closed tx first, so calling
// it again on a closed transaction has no effect.
func (uc *ReconcilePurchasesUseCase) applyPolicy(ctx context.Context, tx *purchase.Transaction) (purchase.Decision, error) {
	now := uc.ledger.Now()
	switch decision := tx.Decide(now); decision {
	case purchase.DecisionSettle:
		won, err := uc.settle(ctx, tx, now)
		if err != nil || !won {
			return purchase.DecisionKeep, err
		}
		return decision, nil
	case purchase.DecisionExpire:
		won, err := uc.expire(ctx, tx, now)
		if err != nil || !won {
			return purchase.DecisionKeep, err
		}
		return decision, nil
	default:
		return purchase.DecisionKeep, nil
	}
}

// settle closes tx and then requests the token transfer. The close is
// persisted first so a transfer is requested at most once; a transfer that
// fails afterwards leaves tx closed and is reported for manual handling.
func (uc *ReconcilePurchasesUseCase) settle(ctx context.Context, tx *purchase.Transaction, now time.Time) (bool, error) {
	if err := tx.Settle(now); err != nil {
		return false, err
	}
	won, err := uc.ledger.Close(ctx, tx)
	if err != nil {
		return false, err
	}
	if !won {
		uc.logger.Debugw("transaction already closed", "id", tx.ID())
		return false, nil
	}
	uc.metrics.Settled(tx.Variant())

	// the transaction is already closed; finish the transfer even if the tick is cancelled
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.config.CallTimeout)
	defer cancel()

	if err := uc.submitter.SubmitTransfer(submitCtx, tx.ExternalAccount(), tx.PurchaseAmount(), uc.config.TokenCode); err != nil {
		uc.metrics.SettlementFailed(tx.Variant())
		uc.logger.Errorw("settlement transfer failed, manual resolution required",
			"severity", "critical",
			"id", tx.ID(),
			"variant", tx.Variant(),
			"external_account", tx.ExternalAccount(),
			"purchase_amount", tx.PurchaseAmount().String(),
			"token", uc.config.TokenCode,
			"error", err,
		)
		if recordErr := uc.ledger.RecordSettlementFailure(context.WithoutCancel(ctx), tx, err); recordErr != nil {
			uc.logger.Errorw("failed to record settlement failure",
				"severity", "critical",
				"id", tx.ID(),
				"error", recordErr,
			)
		}
		return true, nil
	}

	uc.logger.Infow("purchase settled",
		"id", tx.ID(),
		"variant", tx.Variant(),
		"external_account", tx.ExternalAccount(),
		"amount_received", tx.AmountReceived().String(),
		"purchase_amount", tx.PurchaseAmount().String(),
	)
	return true, nil
}

// expire closes tx and, for a utxo purchase that received nothing, returns
// its slot to the pool in the same store transaction.
func (uc *ReconcilePurchasesUseCase) expire(ctx context.Context, tx *purchase.Transaction, now time.Time) (bool, error) {
	var won, released bool
	err := uc.txRunner.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := tx.Expire(now); err != nil {
			return err
		}
		closed, err := uc.ledger.Close(txCtx, tx)
		if err != nil {
			return err
		}
		if !closed {
			return nil
		}
		won = true
		if tx.ReleasesSlot() {
			if err := uc.allocator.Release(txCtx, tx.Utxo().Slot); err != nil {
				return fmt.Errorf("failed to release slot %s: %w", tx.Utxo().Slot, err)
			}
			released = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !won {
		uc.logger.Debugw("transaction already closed", "id", tx.ID())
		return false, nil
	}

	uc.metrics.Expired(tx.Variant(), released)
	if tx.Resolution() == vo.ResolutionUnsettled {
		uc.logger.Warnw("purchase expired with partial payment, manual resolution required",
			"id", tx.ID(),
			"variant", tx.Variant(),
			"external_account", tx.ExternalAccount(),
			"amount_due", tx.AmountDue().String(),
			"amount_received", tx.AmountReceived().String(),
		)
	} else {
		uc.logger.Infow("purchase expired",
			"id", tx.ID(),
			"variant", tx.Variant(),
			"slot_released", released,
		)
	}
	return true, nil
}
