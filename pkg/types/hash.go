// Package types defines core primitive types for the proof registry.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash is a 256-bit digest. Call signing hashes, params hashes and ledger
// IDs all use it.
type Hash [HashSize]byte

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hash as 64 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash.
func (h Hash) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON accepts the forms ParseHash does. An empty string
// decodes to the zero hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses 64 hex characters, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixedHex(h[:], s, "hash"); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// decodeFixedHex decodes an optionally 0x-prefixed hex string that must
// fill dst exactly.
func decodeFixedHex(dst []byte, s, what string) error {
	if s == "" {
		return fmt.Errorf("empty %s", what)
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%s must be %d bytes, got %d", what, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
