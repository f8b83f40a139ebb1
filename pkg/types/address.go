package types

import (
	"encoding/hex"
	"encoding/json"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Address identifies an account. It is the truncated BLAKE3 hash of the
// account's compressed public key.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the 0x-prefixed hex address.
func (a Address) String() string {
	return "0x" + a.Hex()
}

// Hex returns the raw hex-encoded address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a 0x-prefixed hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a prefixed or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a 40-char hex address, with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := decodeFixedHex(a[:], s, "address"); err != nil {
		return Address{}, err
	}
	return a, nil
}
