// Package poe implements the proof-of-existence claim registry.
//
// A Module binds opaque proofs to the account that claimed them and the
// block height at which that account acquired them. Every transition runs
// all of its guards before touching the store or the event sink, so a
// failed transition leaves both exactly as they were.
//
// The module holds no locks; the host must dispatch transitions serially.
package poe

import (
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// Module is the claim registry state-transition logic.
type Module struct {
	params Params
	host   Host
}

// New creates a module over the given host capabilities.
func New(params Params, host Host) *Module {
	return &Module{params: params, host: host}
}

// Params returns the module parameters.
func (m *Module) Params() Params {
	return m.params
}

// CreateClaim binds proof to the caller at the current block height.
func (m *Module) CreateClaim(origin Origin, proof []byte) error {
	caller, err := m.host.Auth.Authenticate(origin)
	if err != nil {
		return err
	}
	if err := m.lengthOK(proof); err != nil {
		return err
	}
	if err := m.notPresent(proof); err != nil {
		return err
	}

	h := m.host.Heights.BlockHeight()
	if err := m.host.Store.Insert(proof, Claim{Owner: caller, Height: h}); err != nil {
		return err
	}
	m.host.Events.Deposit(ClaimCreated(caller, proof))
	return nil
}

// RevokeClaim unbinds a proof owned by the caller.
// Length is not checked: an over-long proof can never be present.
func (m *Module) RevokeClaim(origin Origin, proof []byte) error {
	caller, err := m.host.Auth.Authenticate(origin)
	if err != nil {
		return err
	}
	if err := m.present(proof); err != nil {
		return err
	}
	if err := m.isOwner(proof, caller); err != nil {
		return err
	}

	if err := m.host.Store.Remove(proof); err != nil {
		return err
	}
	m.host.Events.Deposit(ClaimRevoked(caller, proof))
	return nil
}

// TransferClaim rebinds a proof owned by the caller to dest at the current
// block height. dest may equal the caller, which only refreshes the height.
func (m *Module) TransferClaim(origin Origin, proof []byte, dest types.Address) error {
	caller, err := m.host.Auth.Authenticate(origin)
	if err != nil {
		return err
	}
	if err := m.lengthOK(proof); err != nil {
		return err
	}
	if err := m.present(proof); err != nil {
		return err
	}
	if err := m.isOwner(proof, caller); err != nil {
		return err
	}

	h := m.host.Heights.BlockHeight()
	if err := m.host.Store.Insert(proof, Claim{Owner: dest, Height: h}); err != nil {
		return err
	}
	if m.params.EmitTransferEvents {
		m.host.Events.Deposit(ClaimTransferred(caller, dest, proof))
	}
	return nil
}

// Proofs returns the claim bound to proof. The boolean is false, with a
// zero Claim, when the proof is absent; a zero owner is never a real claim.
func (m *Module) Proofs(proof []byte) (Claim, bool, error) {
	ok, err := m.host.Store.Has(proof)
	if err != nil || !ok {
		return Claim{}, false, err
	}
	c, err := m.host.Store.Get(proof)
	if err != nil {
		return Claim{}, false, err
	}
	return c, true, nil
}
