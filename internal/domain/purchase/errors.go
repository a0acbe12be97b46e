package purchase

import "errors"

var (
	// ErrActiveTransactionExists is returned when the purchaser already has an
	// active transaction of the same variant.
	ErrActiveTransactionExists = errors.New("transaction exists")
	ErrTransactionNotFound     = errors.New("purchase transaction not found")
	ErrTransactionInactive     = errors.New("purchase transaction is not active")
	// ErrVersionConflict is returned when the stored row changed since tx was loaded.
	ErrVersionConflict = errors.New("version conflict: purchase transaction was modified")
)
