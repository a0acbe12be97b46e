package mappers

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/models"
)

func PurchaseTransactionToModel(tx *purchase.Transaction) *models.PurchaseTransactionModel {
	model := &models.PurchaseTransactionModel{
		ID:              tx.ID(),
		Variant:         tx.Variant().String(),
		ExternalAccount: tx.ExternalAccount(),
		Active:          tx.IsActive(),
		PurchaseAmount:  tx.PurchaseAmount(),
		AmountDue:       tx.AmountDue(),
		AmountReceived:  tx.AmountReceived(),
		ExpiresAt:       tx.ExpiresAt(),
		Resolution:      tx.Resolution().String(),
		ClosedAt:        tx.ClosedAt(),
		Version:         tx.Version(),
		CreatedAt:       tx.CreatedAt(),
		UpdatedAt:       tx.UpdatedAt(),
	}

	if tx.IsActive() {
		account := tx.ExternalAccount()
		model.ActiveAccount = &account
	}

	if u := tx.Utxo(); u != nil {
		keyGroup := u.Slot.KeyGroup
		index := u.Slot.DerivationIndex
		model.KeyGroup = &keyGroup
		model.DerivationIndex = &index
	}
	if a := tx.Account(); a != nil {
		deposit := a.DepositAccount
		memo := a.Memo
		model.DepositAccount = &deposit
		model.Memo = &memo
	}

	if len(tx.Metadata()) > 0 {
		model.Metadata = datatypes.JSONMap(tx.Metadata())
	}

	return model
}

func PurchaseTransactionToDomain(model *models.PurchaseTransactionModel) (*purchase.Transaction, error) {
	variant, err := vo.NewVariant(model.Variant)
	if err != nil {
		return nil, err
	}

	params := purchase.TransactionReconstructParams{
		ID:              model.ID,
		Variant:         variant,
		ExternalAccount: model.ExternalAccount,
		PurchaseAmount:  model.PurchaseAmount,
		AmountDue:       model.AmountDue,
		AmountReceived:  model.AmountReceived,
		ExpiresAt:       model.ExpiresAt.UTC(),
		Active:          model.Active,
		Resolution:      vo.Resolution(model.Resolution),
		Metadata:        map[string]interface{}(model.Metadata),
		ClosedAt:        model.ClosedAt,
		Version:         model.Version,
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}

	switch variant {
	case vo.VariantUtxo:
		if model.KeyGroup == nil || model.DerivationIndex == nil {
			return nil, fmt.Errorf("utxo transaction %s has no address slot", model.ID)
		}
		params.Utxo = &purchase.UtxoPayment{Slot: purchase.SlotRef{
			KeyGroup:        *model.KeyGroup,
			DerivationIndex: *model.DerivationIndex,
		}}
	case vo.VariantAccount:
		if model.DepositAccount == nil || model.Memo == nil {
			return nil, fmt.Errorf("account transaction %s has no deposit account or memo", model.ID)
		}
		params.Account = &purchase.AccountPayment{
			DepositAccount: *model.DepositAccount,
			Memo:           *model.Memo,
		}
	}

	return purchase.ReconstructTransaction(params), nil
}

func AddressSlotToDomain(model *models.AddressSlotModel) *purchase.AddressSlot {
	return &purchase.AddressSlot{
		ID:              model.ID,
		KeyGroup:        model.KeyGroup,
		DerivationIndex: model.DerivationIndex,
		Available:       model.Available,
	}
}
