package valueobjects

import "fmt"

// Variant is the discriminant of a purchase transaction: which chain the
// purchaser pays on.
type Variant string

const (
	// VariantUtxo pays to a derived address on a Bitcoin-style chain.
	VariantUtxo Variant = "utxo"
	// VariantAccount pays to a shared deposit account, matched by memo.
	VariantAccount Variant = "account"
)

func NewVariant(v string) (Variant, error) {
	variant := Variant(v)
	if !variant.IsValid() {
		return "", fmt.Errorf("invalid purchase variant: %s", v)
	}
	return variant, nil
}

func (v Variant) IsValid() bool {
	switch v {
	case VariantUtxo, VariantAccount:
		return true
	default:
		return false
	}
}

func (v Variant) String() string {
	return string(v)
}
