package poe

import "github.com/Klingon-tech/klingnet-poe/config"

// Params holds the static rules bound to a module at construction.
type Params struct {
	// MaxProofLength is the inclusive upper bound on proof length, in bytes.
	MaxProofLength int

	// EmitTransferEvents deposits ClaimTransferred on successful transfers.
	EmitTransferEvents bool
}

// ParamsFromConfig converts protocol parameters loaded from params.json.
func ParamsFromConfig(p *config.Params) Params {
	return Params{
		MaxProofLength:     int(p.MaxProofLength),
		EmitTransferEvents: p.EmitTransferEvents,
	}
}
