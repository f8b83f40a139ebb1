package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/internal/poe"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// Authentication errors.
var (
	ErrBadOrigin    = errors.New("unsupported origin")
	ErrUnsigned     = errors.New("call is not signed")
	ErrBadSignature = errors.New("invalid call signature")
	ErrBadNonce     = errors.New("bad nonce")
	ErrWrongLedger  = errors.New("call is for another ledger")
)

// NonceFunc returns the next expected nonce for an account.
type NonceFunc func(addr types.Address) (uint64, error)

// Authenticator verifies signed calls and resolves the calling account.
type Authenticator struct {
	verifier crypto.Verifier
	ledger   types.Hash
	nonces   NonceFunc
}

var _ poe.Authenticator = (*Authenticator)(nil)

// NewAuthenticator creates an authenticator for the ledger with the given
// ID, using the given nonce source.
func NewAuthenticator(verifier crypto.Verifier, ledgerID types.Hash, nonces NonceFunc) *Authenticator {
	return &Authenticator{verifier: verifier, ledger: ledgerID, nonces: nonces}
}

// Authenticate checks the call's ledger ID, signature and nonce and
// returns the address of its public key.
func (a *Authenticator) Authenticate(origin poe.Origin) (types.Address, error) {
	call, ok := origin.(*Call)
	if !ok || call == nil {
		return types.Address{}, ErrBadOrigin
	}
	if len(call.PubKey) == 0 || len(call.Signature) == 0 {
		return types.Address{}, ErrUnsigned
	}
	if call.Ledger != a.ledger {
		return types.Address{}, fmt.Errorf("%w: %s", ErrWrongLedger, call.Ledger)
	}

	hash := call.SigningHash()
	if !a.verifier.Verify(hash[:], call.Signature, call.PubKey) {
		return types.Address{}, ErrBadSignature
	}

	addr := call.Sender()
	want, err := a.nonces(addr)
	if err != nil {
		return types.Address{}, fmt.Errorf("nonce lookup: %w", err)
	}
	if call.Nonce != want {
		return types.Address{}, fmt.Errorf("%w: got %d, want %d", ErrBadNonce, call.Nonce, want)
	}
	return addr, nil
}
