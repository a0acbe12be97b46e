package usecases

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/domain/purchase"
)

type RequestPurchaseCommand struct {
	ExternalAccount string
	PurchaseAmount  decimal.Decimal
}

type UtxoPurchaseResult struct {
	ID             string
	Address        string
	AmountDue      decimal.Decimal
	AmountReceived decimal.Decimal
	PurchaseAmount decimal.Decimal
	ExpiresAt      time.Time
}

type AccountPurchaseResult struct {
	ID             string
	DepositAccount string
	Memo           string
	AmountDue      decimal.Decimal
	AmountReceived decimal.Decimal
	PurchaseAmount decimal.Decimal
	ExpiresAt      time.Time
}

func toUtxoResult(tx *purchase.Transaction, address string) *UtxoPurchaseResult {
	return &UtxoPurchaseResult{
		ID:             tx.ID(),
		Address:        address,
		AmountDue:      tx.AmountDue(),
		AmountReceived: tx.AmountReceived(),
		PurchaseAmount: tx.PurchaseAmount(),
		ExpiresAt:      tx.ExpiresAt(),
	}
}

func toAccountResult(tx *purchase.Transaction) *AccountPurchaseResult {
	return &AccountPurchaseResult{
		ID:             tx.ID(),
		DepositAccount: tx.Account().DepositAccount,
		Memo:           tx.Account().Memo,
		AmountDue:      tx.AmountDue(),
		AmountReceived: tx.AmountReceived(),
		PurchaseAmount: tx.PurchaseAmount(),
		ExpiresAt:      tx.ExpiresAt(),
	}
}
