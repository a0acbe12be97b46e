package addressalloc

import (
	"context"
	"errors"

	"github.com/iscoin/purchase/internal/domain/purchase"
)

// ErrAllocationFailed is returned when a slot could not be taken after the
// allocator's retry budget was spent on lost races.
var ErrAllocationFailed = errors.New("address allocation failed")

// AddressAllocator hands out receiving address slots exclusively.
type AddressAllocator interface {
	// Acquire returns a slot of keyGroup that is now unavailable to every
	// other caller. The lowest available index is reused before a new one
	// is created.
	Acquire(ctx context.Context, keyGroup int) (*purchase.AddressSlot, error)

	// Release makes the slot available again.
	Release(ctx context.Context, ref purchase.SlotRef) error
}

// AddressDeriver turns a slot into its public receiving address. It is pure:
// the same slot always yields the same address.
type AddressDeriver interface {
	Derive(ref purchase.SlotRef) (string, error)
}
