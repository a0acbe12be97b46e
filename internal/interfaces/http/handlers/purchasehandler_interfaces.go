package handlers

import (
	"context"

	"github.com/iscoin/purchase/internal/application/purchase/usecases"
)

// Use case interfaces for PurchaseHandler

type requestUtxoPurchaseUseCase interface {
	Execute(ctx context.Context, cmd usecases.RequestPurchaseCommand) (*usecases.UtxoPurchaseResult, error)
}

type requestAccountPurchaseUseCase interface {
	Execute(ctx context.Context, cmd usecases.RequestPurchaseCommand) (*usecases.AccountPurchaseResult, error)
}

type getPurchaseStatusUseCase interface {
	Execute(ctx context.Context, externalAccount string) (*usecases.PurchaseStatus, error)
}
