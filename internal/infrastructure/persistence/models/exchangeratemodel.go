package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/shared/constants"
)

// ExchangeRateModel is the admin-maintained price of one token unit in a
// payment currency.
type ExchangeRateModel struct {
	ID           uint            `gorm:"primaryKey"`
	CurrencyCode string          `gorm:"size:16;not null;uniqueIndex:uk_exchange_rates_currency"`
	Rate         decimal.Decimal `gorm:"type:varchar(64);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ExchangeRateModel) TableName() string {
	return constants.TableExchangeRates
}
