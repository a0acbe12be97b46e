package payment

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/domain/purchase"
)

// HDAddressDeriver derives P2PKH receiving addresses from extended public
// keys. The key group of a slot is the position of its xpub in the
// configured list.
type HDAddressDeriver struct {
	keys   []*hdkeychain.ExtendedKey
	params *chaincfg.Params
}

var _ addressalloc.AddressDeriver = (*HDAddressDeriver)(nil)

func NewHDAddressDeriver(xpubs []string, network string) (*HDAddressDeriver, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}
	if len(xpubs) == 0 {
		return nil, fmt.Errorf("at least one extended public key is required")
	}

	keys := make([]*hdkeychain.ExtendedKey, 0, len(xpubs))
	for i, xpub := range xpubs {
		key, err := hdkeychain.NewKeyFromString(xpub)
		if err != nil {
			return nil, fmt.Errorf("invalid extended public key for key group %d: %w", i, err)
		}
		if key.IsPrivate() {
			return nil, fmt.Errorf("key group %d: extended private keys are not accepted", i)
		}
		keys = append(keys, key)
	}

	return &HDAddressDeriver{keys: keys, params: params}, nil
}

// NetworkParams maps a configured network name to its chain parameters.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network: %s", network)
	}
}

func (d *HDAddressDeriver) Derive(ref purchase.SlotRef) (string, error) {
	if ref.KeyGroup < 0 || ref.KeyGroup >= len(d.keys) {
		return "", fmt.Errorf("unknown key group %d", ref.KeyGroup)
	}
	if ref.DerivationIndex >= hdkeychain.HardenedKeyStart {
		return "", fmt.Errorf("derivation index %d is in the hardened range", ref.DerivationIndex)
	}

	child, err := d.keys[ref.KeyGroup].Derive(ref.DerivationIndex)
	if err != nil {
		return "", fmt.Errorf("failed to derive child key %s: %w", ref, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to get public key %s: %w", ref, err)
	}

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), d.params)
	if err != nil {
		return "", fmt.Errorf("failed to encode address %s: %w", ref, err)
	}
	return addr.EncodeAddress(), nil
}
