package usecases

import (
	"context"

	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// RequestAccountPurchaseUseCase records a purchase paid to the shared deposit
// account. The ledger performs the duplicate check and builds the memo.
type RequestAccountPurchaseUseCase struct {
	ledger  *ledger.Ledger
	metrics Metrics
	logger  logger.Interface
}

func NewRequestAccountPurchaseUseCase(
	ledger *ledger.Ledger,
	metrics Metrics,
	logger logger.Interface,
) *RequestAccountPurchaseUseCase {
	return &RequestAccountPurchaseUseCase{
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
	}
}

func (uc *RequestAccountPurchaseUseCase) Execute(ctx context.Context, cmd RequestPurchaseCommand) (*AccountPurchaseResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	tx, err := uc.ledger.CreateTransaction(ctx, ledger.CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: cmd.ExternalAccount,
		PurchaseAmount:  cmd.PurchaseAmount,
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.PurchaseCreated(vo.VariantAccount)
	uc.logger.Infow("account purchase requested",
		"id", tx.ID(),
		"external_account", cmd.ExternalAccount,
		"memo", tx.Account().Memo,
	)
	return toAccountResult(tx), nil
}
