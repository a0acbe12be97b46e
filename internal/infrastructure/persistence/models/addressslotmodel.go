package models

import (
	"time"

	"github.com/iscoin/purchase/internal/shared/constants"
)

// AddressSlotModel is one derivable receiving address. The unique index on
// (key_group, derivation_index) makes concurrent creation of the same slot fail.
type AddressSlotModel struct {
	ID              uint   `gorm:"primaryKey"`
	KeyGroup        int    `gorm:"not null;uniqueIndex:uk_address_slots_group_index,priority:1;index:idx_address_slots_available,priority:1"`
	DerivationIndex uint32 `gorm:"not null;uniqueIndex:uk_address_slots_group_index,priority:2"`
	Available       bool   `gorm:"not null;default:false;index:idx_address_slots_available,priority:2"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (AddressSlotModel) TableName() string {
	return constants.TableAddressSlots
}
