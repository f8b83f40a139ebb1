package poe

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/internal/storage"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// prefixProofs is the registry namespace: proofs/<blake2_128(proof)><proof> -> claim.
var prefixProofs = []byte("proofs/")

// claimSize is the encoded length of a claim: owner(20) || height(8).
const claimSize = types.AddressSize + 8

// Claim is the record bound to a present proof.
type Claim struct {
	Owner  types.Address `json:"owner"`
	Height uint64        `json:"height"`
}

// encodeClaim returns the canonical binary encoding of a claim.
func encodeClaim(c Claim) []byte {
	buf := make([]byte, claimSize)
	copy(buf, c.Owner[:])
	binary.BigEndian.PutUint64(buf[types.AddressSize:], c.Height)
	return buf
}

// decodeClaim parses a claim encoded by encodeClaim.
func decodeClaim(data []byte) (Claim, error) {
	if len(data) != claimSize {
		return Claim{}, fmt.Errorf("claim record must be %d bytes, got %d", claimSize, len(data))
	}
	var c Claim
	copy(c.Owner[:], data[:types.AddressSize])
	c.Height = binary.BigEndian.Uint64(data[types.AddressSize:])
	return c, nil
}

// Store is the typed view of the registry over a host database.
// It is the only path by which the registry is mutated.
type Store struct {
	db storage.DB
}

// NewStore creates a registry store in the proofs namespace of db.
func NewStore(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, prefixProofs)}
}

func proofKey(proof []byte) []byte {
	return crypto.Blake2_128Concat(proof)
}

// Has reports whether the proof is bound.
func (s *Store) Has(proof []byte) (bool, error) {
	ok, err := s.db.Has(proofKey(proof))
	if err != nil {
		return false, fmt.Errorf("proof has: %w", err)
	}
	return ok, nil
}

// Get returns the claim for a bound proof.
// Returns an error wrapping storage.ErrNotFound if the proof is absent.
func (s *Store) Get(proof []byte) (Claim, error) {
	data, err := s.db.Get(proofKey(proof))
	if err != nil {
		return Claim{}, fmt.Errorf("proof get: %w", err)
	}
	c, err := decodeClaim(data)
	if err != nil {
		return Claim{}, fmt.Errorf("proof decode: %w", err)
	}
	return c, nil
}

// Insert binds the proof to the claim, overwriting any prior record.
func (s *Store) Insert(proof []byte, c Claim) error {
	if err := s.db.Put(proofKey(proof), encodeClaim(c)); err != nil {
		return fmt.Errorf("proof insert: %w", err)
	}
	return nil
}

// Remove unbinds the proof. Removing an absent proof is a no-op.
func (s *Store) Remove(proof []byte) error {
	if err := s.db.Delete(proofKey(proof)); err != nil {
		return fmt.Errorf("proof remove: %w", err)
	}
	return nil
}

// ForEach iterates over every bound proof in key order.
func (s *Store) ForEach(fn func(proof []byte, c Claim) error) error {
	return s.db.ForEach(nil, func(key, value []byte) error {
		proof, ok := crypto.SplitBlake2_128Concat(key)
		if !ok {
			return fmt.Errorf("malformed proof key %x", key)
		}
		c, err := decodeClaim(value)
		if err != nil {
			return fmt.Errorf("proof decode: %w", err)
		}
		return fn(proof, c)
	})
}

// Count returns the number of bound proofs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.ForEach(nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
