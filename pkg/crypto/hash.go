// Package crypto provides the hashing and signature primitives used by the
// registry and its host ledger.
package crypto

import (
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Blake2_128Size is the digest length prepended by Blake2_128Concat.
const Blake2_128Size = 16

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// Blake2_128 returns the 16-byte BLAKE2b digest of data.
func Blake2_128(data []byte) [Blake2_128Size]byte {
	var out [Blake2_128Size]byte
	// blake2b.New only fails for sizes outside [1, 64] or keys over 64 bytes.
	h, _ := blake2b.New(Blake2_128Size, nil)
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2_128Concat builds a storage key of the form
// BLAKE2b-128(data) || data. The digest spreads keys evenly across the
// keyspace while the raw suffix keeps the original bytes recoverable.
func Blake2_128Concat(data []byte) []byte {
	digest := Blake2_128(data)
	out := make([]byte, Blake2_128Size+len(data))
	copy(out, digest[:])
	copy(out[Blake2_128Size:], data)
	return out
}

// SplitBlake2_128Concat recovers the original bytes from a
// Blake2_128Concat key. It returns false if the key is too short or the
// digest does not match.
func SplitBlake2_128Concat(key []byte) ([]byte, bool) {
	if len(key) < Blake2_128Size {
		return nil, false
	}
	data := key[Blake2_128Size:]
	digest := Blake2_128(data)
	if string(digest[:]) != string(key[:Blake2_128Size]) {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}
