package poe

import "github.com/Klingon-tech/klingnet-poe/pkg/types"

// lengthOK rejects proofs longer than MaxProofLength.
func (m *Module) lengthOK(proof []byte) error {
	if len(proof) > m.params.MaxProofLength {
		return ErrClaimTooLong
	}
	return nil
}

// notPresent rejects proofs that are already bound.
func (m *Module) notPresent(proof []byte) error {
	ok, err := m.host.Store.Has(proof)
	if err != nil {
		return err
	}
	if ok {
		return ErrProofAlreadyClaimed
	}
	return nil
}

// present rejects proofs that are not bound.
func (m *Module) present(proof []byte) error {
	ok, err := m.host.Store.Has(proof)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchProof
	}
	return nil
}

// isOwner rejects callers other than the stored owner.
// Must only be called after present.
func (m *Module) isOwner(proof []byte, caller types.Address) error {
	c, err := m.host.Store.Get(proof)
	if err != nil {
		return err
	}
	if c.Owner != caller {
		return ErrNotProofOwner
	}
	return nil
}
