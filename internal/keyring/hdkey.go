package keyring

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 path components. Account keys live at
// m/44'/CoinType'/account'/0/0.
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44
	CoinType     = bip32.FirstHardenedChild + 8888
)

// HDKey is a BIP-32 hierarchical deterministic key.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DerivePath derives a key along a sequence of child indices.
// Hardened indices include bip32.FirstHardenedChild.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k.key
	for _, idx := range indices {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &HDKey{key: current}, nil
}

// DeriveAccount derives the signing key of an account index.
func (k *HDKey) DeriveAccount(index uint32) (*HDKey, error) {
	return k.DerivePath(PurposeBIP44, CoinType, bip32.FirstHardenedChild+index, 0, 0)
}

// IsPrivate reports whether the key holds private material.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// privateKeyBytes returns the raw 32-byte private key, or nil for a
// public-only key. bip32 stores private keys with a leading zero byte.
func (k *HDKey) privateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// Signer returns the Schnorr signing key.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.privateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot sign with a public-only key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// Address returns the account address of the key.
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.PublicKeyBytes())
}
