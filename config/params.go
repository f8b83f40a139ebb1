package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// =============================================================================
// Protocol Parameters (immutable once a ledger is initialised)
// =============================================================================

// DefaultMaxProofLength is the default inclusive upper bound on proof size.
const DefaultMaxProofLength = 256

// MaxProofLengthLimit caps the configurable proof length.
const MaxProofLengthLimit = 1 << 16

// Params holds the protocol rules a ledger is bound to.
type Params struct {
	// MaxProofLength is the largest accepted proof, in bytes (inclusive).
	MaxProofLength uint32 `json:"max_proof_length"`

	// EmitTransferEvents deposits a ClaimTransferred event on every
	// successful transfer. Off by default.
	EmitTransferEvents bool `json:"emit_transfer_events"`
}

// DefaultParams returns the default protocol parameters.
func DefaultParams() *Params {
	return &Params{
		MaxProofLength:     DefaultMaxProofLength,
		EmitTransferEvents: false,
	}
}

// LoadParams loads protocol parameters from a JSON file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing params file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	return &p, nil
}

// Save writes the protocol parameters to a file.
func (p *Params) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing params file: %w", err)
	}

	return nil
}

// Validate checks that the parameters are usable. A zero
// max_proof_length admits only the empty proof.
func (p *Params) Validate() error {
	if p.MaxProofLength > MaxProofLengthLimit {
		return fmt.Errorf("max_proof_length must not exceed %d", MaxProofLengthLimit)
	}
	return nil
}

// Hash returns a BLAKE3 hash of the parameters.
// Used to detect a ledger being reopened under different rules.
func (p *Params) Hash() (types.Hash, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
