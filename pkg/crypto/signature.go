package crypto

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Key and signature sizes, in bytes.
const (
	PrivateKeySize = 32
	PublicKeySize  = 33 // compressed
	SignatureSize  = schnorr.SignatureSize
)

// Signer signs call digests on behalf of one account.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	PublicKey() []byte
}

// Verifier checks a signature over a digest for a compressed public key.
type Verifier interface {
	Verify(hash, signature, publicKey []byte) bool
}

// PrivateKey is a secp256k1 key that signs with EC-Schnorr-DCRv0.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

var _ Signer = (*PrivateKey)(nil)

// GenerateKey creates a random key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a 32-byte secret scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign signs a 32-byte digest.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != types.HashSize {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", types.HashSize, len(hash))
	}
	sig, err := schnorr.Sign(pk.key, hash)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the compressed public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the account address controlled by this key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the secret scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero wipes the secret scalar.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature reports whether signature is a valid Schnorr signature
// over hash by publicKey. Malformed input of any kind yields false.
func VerifySignature(hash, signature, publicKey []byte) bool {
	if len(hash) != types.HashSize || len(signature) != SignatureSize {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}

// SchnorrVerifier is the Verifier used by the ledger.
type SchnorrVerifier struct{}

// Verify implements Verifier.
func (SchnorrVerifier) Verify(hash, signature, publicKey []byte) bool {
	return VerifySignature(hash, signature, publicKey)
}
