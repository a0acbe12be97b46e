package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/mappers"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/models"
	"github.com/iscoin/purchase/internal/shared/db"
	apperrors "github.com/iscoin/purchase/internal/shared/errors"
)

type PurchaseTransactionRepository struct {
	db *gorm.DB
}

func NewPurchaseTransactionRepository(db *gorm.DB) *PurchaseTransactionRepository {
	return &PurchaseTransactionRepository{db: db}
}

var _ purchase.TransactionRepository = (*PurchaseTransactionRepository)(nil)

func (r *PurchaseTransactionRepository) Create(ctx context.Context, tx *purchase.Transaction) error {
	model := mappers.PurchaseTransactionToModel(tx)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return purchase.ErrActiveTransactionExists
		}
		return fmt.Errorf("failed to create purchase transaction: %w", err)
	}

	return nil
}

func (r *PurchaseTransactionRepository) GetByID(ctx context.Context, id string) (*purchase.Transaction, error) {
	var model models.PurchaseTransactionModel

	if err := db.GetTxFromContext(ctx, r.db).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchase.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get purchase transaction: %w", err)
	}

	return mappers.PurchaseTransactionToDomain(&model)
}

func (r *PurchaseTransactionRepository) GetActive(ctx context.Context, variant vo.Variant, externalAccount string) (*purchase.Transaction, error) {
	var model models.PurchaseTransactionModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("variant = ? AND external_account = ? AND active = ?", variant.String(), externalAccount, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active purchase transaction: %w", err)
	}

	return mappers.PurchaseTransactionToDomain(&model)
}

func (r *PurchaseTransactionRepository) ListActive(ctx context.Context, variant vo.Variant) ([]*purchase.Transaction, error) {
	var txModels []models.PurchaseTransactionModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("variant = ? AND active = ?", variant.String(), true).
		Order("created_at ASC").
		Find(&txModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list active purchase transactions: %w", err)
	}

	txs := make([]*purchase.Transaction, 0, len(txModels))
	for i := range txModels {
		tx, err := mappers.PurchaseTransactionToDomain(&txModels[i])
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// UpdateAmountReceived writes the received amount of an active row.
// Optimistic locking: the row must still carry the version tx was loaded
// with, otherwise ErrVersionConflict is returned and nothing is written.
func (r *PurchaseTransactionRepository) UpdateAmountReceived(ctx context.Context, tx *purchase.Transaction) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PurchaseTransactionModel{}).
		Where("id = ? AND active = ? AND version = ?", tx.ID(), true, tx.Version()-1).
		Updates(map[string]interface{}{
			"amount_received": tx.AmountReceived(),
			"version":         tx.Version(),
			"updated_at":      tx.UpdatedAt(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update amount received: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return purchase.ErrVersionConflict
	}

	return nil
}

// Close flips active to false only while the stored row is still active and
// unchanged since tx was loaded. RowsAffected tells whether this call won.
func (r *PurchaseTransactionRepository) Close(ctx context.Context, tx *purchase.Transaction) (bool, error) {
	model := mappers.PurchaseTransactionToModel(tx)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PurchaseTransactionModel{}).
		Where("id = ? AND active = ? AND version = ?", tx.ID(), true, model.Version-1).
		Updates(map[string]interface{}{
			"active":          false,
			"active_account":  nil,
			"resolution":      model.Resolution,
			"amount_received": model.AmountReceived,
			"metadata":        model.Metadata,
			"closed_at":       model.ClosedAt,
			"version":         model.Version,
			"updated_at":      model.UpdatedAt,
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to close purchase transaction: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *PurchaseTransactionRepository) UpdateMetadata(ctx context.Context, tx *purchase.Transaction) error {
	model := mappers.PurchaseTransactionToModel(tx)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PurchaseTransactionModel{}).
		Where("id = ?", tx.ID()).
		Updates(map[string]interface{}{
			"metadata":   model.Metadata,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update purchase transaction metadata: %w", result.Error)
	}

	return nil
}
