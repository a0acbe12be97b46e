package usecases

import (
	"context"
	"fmt"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// PurchaseStatus holds the active purchase of each variant, nil when there is none.
type PurchaseStatus struct {
	Utxo    *UtxoPurchaseResult
	Account *AccountPurchaseResult
}

type GetPurchaseStatusUseCase struct {
	ledger  *ledger.Ledger
	deriver addressalloc.AddressDeriver
	logger  logger.Interface
}

func NewGetPurchaseStatusUseCase(
	ledger *ledger.Ledger,
	deriver addressalloc.AddressDeriver,
	logger logger.Interface,
) *GetPurchaseStatusUseCase {
	return &GetPurchaseStatusUseCase{
		ledger:  ledger,
		deriver: deriver,
		logger:  logger,
	}
}

func (uc *GetPurchaseStatusUseCase) Execute(ctx context.Context, externalAccount string) (*PurchaseStatus, error) {
	status := &PurchaseStatus{}

	utxoTx, err := uc.ledger.GetActiveTransaction(ctx, vo.VariantUtxo, externalAccount)
	if err != nil {
		uc.logger.Errorw("failed to get utxo transaction", "error", err, "external_account", externalAccount)
		return nil, fmt.Errorf("failed to get utxo transaction: %w", err)
	}
	if utxoTx != nil {
		address, err := uc.deriver.Derive(utxoTx.Utxo().Slot)
		if err != nil {
			return nil, fmt.Errorf("failed to derive address: %w", err)
		}
		status.Utxo = toUtxoResult(utxoTx, address)
	}

	accountTx, err := uc.ledger.GetActiveTransaction(ctx, vo.VariantAccount, externalAccount)
	if err != nil {
		uc.logger.Errorw("failed to get account transaction", "error", err, "external_account", externalAccount)
		return nil, fmt.Errorf("failed to get account transaction: %w", err)
	}
	if accountTx != nil {
		status.Account = toAccountResult(accountTx)
	}

	return status, nil
}
