package ratesource

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrRateNotFound is returned when no rate is configured for a currency.
var ErrRateNotFound = errors.New("exchange rate not found")

// RateSource provides the price of one token unit in a payment currency.
type RateSource interface {
	// GetExchangeRate returns the rate for currencyCode (e.g. "BTC", "EOS").
	// Returns ErrRateNotFound if the currency has no rate.
	GetExchangeRate(ctx context.Context, currencyCode string) (decimal.Decimal, error)
}
