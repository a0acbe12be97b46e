package purchase

import (
	"context"

	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

type TransactionRepository interface {
	// Create inserts a new active transaction. It returns
	// ErrActiveTransactionExists when the store already holds an active
	// transaction for the same variant and external account.
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id string) (*Transaction, error)
	// GetActive returns nil, nil when the account has no active transaction of the variant.
	GetActive(ctx context.Context, variant vo.Variant, externalAccount string) (*Transaction, error)
	ListActive(ctx context.Context, variant vo.Variant) ([]*Transaction, error)
	UpdateAmountReceived(ctx context.Context, tx *Transaction) error
	// Close persists the active to inactive transition only if the stored row
	// is still active. It reports whether this call performed the transition.
	Close(ctx context.Context, tx *Transaction) (bool, error)
	UpdateMetadata(ctx context.Context, tx *Transaction) error
}
