package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/internal/poe"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// Method selects the registry transition a call dispatches to.
type Method uint8

// Registry methods.
const (
	MethodCreateClaim   Method = 1
	MethodRevokeClaim   Method = 2
	MethodTransferClaim Method = 3
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodCreateClaim:
		return "create_claim"
	case MethodRevokeClaim:
		return "revoke_claim"
	case MethodTransferClaim:
		return "transfer_claim"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ParseMethod parses a wire method name.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "create_claim", "create":
		return MethodCreateClaim, nil
	case "revoke_claim", "revoke":
		return MethodRevokeClaim, nil
	case "transfer_claim", "transfer":
		return MethodTransferClaim, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Call is a signed request to run one registry transition.
type Call struct {
	Ledger types.Hash // ID of the ledger the call is meant for
	Method Method
	Nonce  uint64
	Proof  []byte
	Dest   types.Address // transfer_claim only

	PubKey    []byte
	Signature []byte
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: ledger(32) | method(1) | nonce(8) | proof_len(4) | proof | dest(20)
func (c *Call) SigningBytes() []byte {
	buf := make([]byte, 0, types.HashSize+1+8+4+len(c.Proof)+types.AddressSize)
	buf = append(buf, c.Ledger[:]...)
	buf = append(buf, byte(c.Method))
	buf = binary.LittleEndian.AppendUint64(buf, c.Nonce)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Proof)))
	buf = append(buf, c.Proof...)
	buf = append(buf, c.Dest[:]...)
	return buf
}

// SigningHash is the BLAKE3 hash of SigningBytes. Signatures cover it.
func (c *Call) SigningHash() types.Hash {
	return crypto.Hash(c.SigningBytes())
}

// Sign signs the call and attaches the signer's public key.
func (c *Call) Sign(s crypto.Signer) error {
	hash := c.SigningHash()
	sig, err := s.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign call: %w", err)
	}
	c.Signature = sig
	c.PubKey = s.PublicKey()
	return nil
}

// Origin returns the call as the origin handed to the registry.
func (c *Call) Origin() poe.Origin {
	return c
}

// Sender returns the address of the attached public key.
// It does not check the signature.
func (c *Call) Sender() types.Address {
	return crypto.AddressFromPubKey(c.PubKey)
}
