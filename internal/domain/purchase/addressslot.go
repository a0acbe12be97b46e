package purchase

import "fmt"

// SlotRef identifies one derivable receiving address: the public key root it
// derives from and its index below that root.
type SlotRef struct {
	KeyGroup        int
	DerivationIndex uint32
}

func (r SlotRef) String() string {
	return fmt.Sprintf("%d/%d", r.KeyGroup, r.DerivationIndex)
}

// AddressSlot is one entry of the receiving address pool. Slots are never
// deleted; Available flips as purchases take and return them.
type AddressSlot struct {
	ID              uint
	KeyGroup        int
	DerivationIndex uint32
	Available       bool
}

func (s *AddressSlot) Ref() SlotRef {
	return SlotRef{KeyGroup: s.KeyGroup, DerivationIndex: s.DerivationIndex}
}
