package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	apperrors "github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// RequestUtxoPurchaseUseCase assigns a receiving address from the current key
// group and records the purchase against it.
type RequestUtxoPurchaseUseCase struct {
	ledger    *ledger.Ledger
	allocator addressalloc.AddressAllocator
	deriver   addressalloc.AddressDeriver
	keyGroup  int
	metrics   Metrics
	logger    logger.Interface
}

func NewRequestUtxoPurchaseUseCase(
	ledger *ledger.Ledger,
	allocator addressalloc.AddressAllocator,
	deriver addressalloc.AddressDeriver,
	keyGroup int,
	metrics Metrics,
	logger logger.Interface,
) *RequestUtxoPurchaseUseCase {
	return &RequestUtxoPurchaseUseCase{
		ledger:    ledger,
		allocator: allocator,
		deriver:   deriver,
		keyGroup:  keyGroup,
		metrics:   metrics,
		logger:    logger,
	}
}

func (uc *RequestUtxoPurchaseUseCase) Execute(ctx context.Context, cmd RequestPurchaseCommand) (*UtxoPurchaseResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	existing, err := uc.ledger.GetActiveTransaction(ctx, vo.VariantUtxo, cmd.ExternalAccount)
	if err != nil {
		uc.logger.Errorw("failed to check active transaction", "error", err, "external_account", cmd.ExternalAccount)
		return nil, fmt.Errorf("failed to check active transaction: %w", err)
	}
	if existing != nil {
		return nil, apperrors.NewConflictError(purchase.ErrActiveTransactionExists.Error())
	}

	// no slot is taken for a request that would fail on the rate
	rate, err := uc.ledger.Rate(ctx, vo.VariantUtxo)
	if err != nil {
		return nil, err
	}

	slot, err := uc.allocator.Acquire(ctx, uc.keyGroup)
	if err != nil {
		uc.logger.Errorw("failed to acquire address slot", "error", err, "key_group", uc.keyGroup)
		if errors.Is(err, addressalloc.ErrAllocationFailed) {
			return nil, apperrors.NewUnavailableError("no receiving address available, please retry")
		}
		return nil, fmt.Errorf("failed to acquire address slot: %w", err)
	}
	ref := slot.Ref()

	address, err := uc.deriver.Derive(ref)
	if err != nil {
		uc.releaseSlot(ctx, ref, err)
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}

	tx, err := uc.ledger.CreateTransaction(ctx, ledger.CreateTransactionCommand{
		Variant:         vo.VariantUtxo,
		ExternalAccount: cmd.ExternalAccount,
		PurchaseAmount:  cmd.PurchaseAmount,
		Slot:            &ref,
		Rate:            rate,
	})
	if err != nil {
		uc.releaseSlot(ctx, ref, err)
		return nil, err
	}

	uc.metrics.PurchaseCreated(vo.VariantUtxo)
	uc.logger.Infow("utxo purchase requested",
		"id", tx.ID(),
		"external_account", cmd.ExternalAccount,
		"slot", ref.String(),
		"address", address,
	)
	return toUtxoResult(tx, address), nil
}

// releaseSlot returns a slot whose purchase could not be recorded. The
// request context may already be cancelled, so the release runs detached
// from it.
func (uc *RequestUtxoPurchaseUseCase) releaseSlot(ctx context.Context, ref purchase.SlotRef, cause error) {
	if err := uc.allocator.Release(context.WithoutCancel(ctx), ref); err != nil {
		uc.logger.Errorw("failed to release address slot after failed purchase",
			"slot", ref.String(),
			"cause", cause,
			"error", err,
		)
		return
	}
	uc.logger.Debugw("address slot released after failed purchase", "slot", ref.String(), "cause", cause)
}

func validateCommand(cmd RequestPurchaseCommand) error {
	if cmd.ExternalAccount == "" {
		return apperrors.NewValidationError("external account is required")
	}
	if !cmd.PurchaseAmount.IsPositive() {
		return apperrors.NewValidationError("purchase amount must be positive")
	}
	return nil
}
