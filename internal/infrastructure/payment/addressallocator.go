package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/domain/purchase"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/mappers"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/models"
	"github.com/iscoin/purchase/internal/shared/biztime"
	"github.com/iscoin/purchase/internal/shared/db"
	apperrors "github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// Bound on retries when concurrent callers keep winning the same slot.
const maxAcquireAttempts = 16

// AddressAllocator hands out receiving address slots from the address_slots
// table. A slot is taken with a conditional update on available, so two
// callers can never both win it. New slots are appended at max+1 and the
// unique (key_group, derivation_index) index rejects a second insert of the
// same index.
type AddressAllocator struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewAddressAllocator(db *gorm.DB, logger logger.Interface) *AddressAllocator {
	return &AddressAllocator{
		db:     db,
		logger: logger,
	}
}

var _ addressalloc.AddressAllocator = (*AddressAllocator)(nil)

// Acquire returns the lowest available slot of keyGroup, or a freshly created
// one when every existing slot is in use.
func (a *AddressAllocator) Acquire(ctx context.Context, keyGroup int) (*purchase.AddressSlot, error) {
	if keyGroup < 0 {
		return nil, fmt.Errorf("invalid key group %d", keyGroup)
	}

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slot, err := a.tryAcquire(ctx, keyGroup)
		if err != nil {
			return nil, err
		}
		if slot != nil {
			a.logger.Debugw("address slot acquired",
				"key_group", slot.KeyGroup,
				"derivation_index", slot.DerivationIndex,
				"attempt", attempt+1,
			)
			return slot, nil
		}
	}

	return nil, fmt.Errorf("%w: key group %d after %d attempts", addressalloc.ErrAllocationFailed, keyGroup, maxAcquireAttempts)
}

// tryAcquire makes one attempt. A nil slot with a nil error means another
// caller won the race and the attempt should be repeated.
func (a *AddressAllocator) tryAcquire(ctx context.Context, keyGroup int) (*purchase.AddressSlot, error) {
	txDB := db.GetTxFromContext(ctx, a.db)
	now := biztime.NowUTC()

	var existing models.AddressSlotModel
	err := txDB.
		Where("key_group = ? AND available = ?", keyGroup, true).
		Order("derivation_index ASC").
		First(&existing).Error

	if err == nil {
		result := txDB.Model(&models.AddressSlotModel{}).
			Where("id = ? AND available = ?", existing.ID, true).
			Updates(map[string]interface{}{
				"available":  false,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to take address slot: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			a.logger.Debugw("address slot taken concurrently",
				"key_group", keyGroup,
				"derivation_index", existing.DerivationIndex,
			)
			return nil, nil
		}
		existing.Available = false
		return mappers.AddressSlotToDomain(&existing), nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query available address slots: %w", err)
	}

	var maxIndex sql.NullInt64
	if err := txDB.Model(&models.AddressSlotModel{}).
		Where("key_group = ?", keyGroup).
		Select("MAX(derivation_index)").
		Row().Scan(&maxIndex); err != nil {
		return nil, fmt.Errorf("failed to read highest derivation index: %w", err)
	}

	next := uint32(0)
	if maxIndex.Valid {
		next = uint32(maxIndex.Int64) + 1
	}

	model := &models.AddressSlotModel{
		KeyGroup:        keyGroup,
		DerivationIndex: next,
		Available:       false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := txDB.Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			a.logger.Debugw("address slot created concurrently",
				"key_group", keyGroup,
				"derivation_index", next,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create address slot: %w", err)
	}

	return mappers.AddressSlotToDomain(model), nil
}

// Release returns a slot to the pool.
func (a *AddressAllocator) Release(ctx context.Context, ref purchase.SlotRef) error {
	result := db.GetTxFromContext(ctx, a.db).
		Model(&models.AddressSlotModel{}).
		Where("key_group = ? AND derivation_index = ?", ref.KeyGroup, ref.DerivationIndex).
		Updates(map[string]interface{}{
			"available":  true,
			"updated_at": biztime.NowUTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to release address slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("address slot %s not found", ref)
	}

	a.logger.Infow("released address slot",
		"key_group", ref.KeyGroup,
		"derivation_index", ref.DerivationIndex,
	)

	return nil
}

// Stats counts slots of keyGroup by availability.
func (a *AddressAllocator) Stats(ctx context.Context, keyGroup int) (total, available int64, err error) {
	txDB := db.GetTxFromContext(ctx, a.db)
	if err = txDB.Model(&models.AddressSlotModel{}).Where("key_group = ?", keyGroup).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count address slots: %w", err)
	}
	if err = txDB.Model(&models.AddressSlotModel{}).Where("key_group = ? AND available = ?", keyGroup, true).Count(&available).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count available address slots: %w", err)
	}
	return total, available, nil
}
