package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/iscoin/purchase/internal/shared/constants"
)

// PurchaseTransactionModel stores both purchase variants in one table.
// ActiveAccount mirrors ExternalAccount while the row is active and is NULL
// afterwards, so the unique index on (variant, active_account) allows one
// active purchase per account and any number of closed ones.
type PurchaseTransactionModel struct {
	ID              string          `gorm:"primaryKey;size:36"`
	Variant         string          `gorm:"size:16;not null;index:idx_purchase_tx_lookup,priority:1;uniqueIndex:uk_purchase_tx_active_account,priority:1"`
	ExternalAccount string          `gorm:"size:64;not null;index:idx_purchase_tx_lookup,priority:2"`
	Active          bool            `gorm:"not null;index:idx_purchase_tx_lookup,priority:3"`
	ActiveAccount   *string         `gorm:"size:64;uniqueIndex:uk_purchase_tx_active_account,priority:2"`
	PurchaseAmount  decimal.Decimal `gorm:"type:varchar(64);not null"`
	AmountDue       decimal.Decimal `gorm:"type:varchar(64);not null"`
	AmountReceived  decimal.Decimal `gorm:"type:varchar(64);not null"`
	ExpiresAt       time.Time       `gorm:"not null"`
	Resolution      string          `gorm:"size:16;not null;default:''"`

	// utxo variant
	KeyGroup        *int
	DerivationIndex *uint32

	// account variant
	DepositAccount *string `gorm:"size:64"`
	Memo           *string `gorm:"size:128"`

	Metadata  datatypes.JSONMap
	ClosedAt  *time.Time
	Version   int `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PurchaseTransactionModel) TableName() string {
	return constants.TablePurchaseTransactions
}
