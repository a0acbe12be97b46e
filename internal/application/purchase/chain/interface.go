package chain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one incoming transfer observed on an account-based chain.
type Transfer struct {
	From         string
	To           string
	Memo         string
	Amount       decimal.Decimal
	CurrencyCode string
}

// UtxoLedgerClient queries a Bitcoin-style chain.
type UtxoLedgerClient interface {
	// GetReceivedBalance returns the total amount ever received by address,
	// in whole coins.
	GetReceivedBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// AccountLedgerClient queries an account-based chain.
type AccountLedgerClient interface {
	// GetIncomingTransfers returns the complete transfer history of account
	// from after onwards; a zero after means the whole history. Callers
	// filter by recipient, memo and currency.
	GetIncomingTransfers(ctx context.Context, account string, after time.Time) ([]Transfer, error)
}

// TransferSubmitter issues the purchased token to a purchaser.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, destination string, amount decimal.Decimal, currencyCode string) error
}
