package poe

import "errors"

// Registry errors. Host authentication errors are returned unchanged and
// are not part of this set.
var (
	ErrProofAlreadyClaimed = errors.New("proof already claimed")
	ErrNoSuchProof         = errors.New("no such proof")
	ErrNotProofOwner       = errors.New("not proof owner")
	ErrClaimTooLong        = errors.New("claim too long")
)

// moduleErrors lists the registry errors in index order.
var moduleErrors = []error{
	ErrProofAlreadyClaimed,
	ErrNoSuchProof,
	ErrNotProofOwner,
	ErrClaimTooLong,
}

// ErrorIndex returns the stable numeric index of a registry error, used in
// receipts. It returns -1 for any other error, including wrapped host errors.
func ErrorIndex(err error) int {
	for i, e := range moduleErrors {
		if errors.Is(err, e) {
			return i
		}
	}
	return -1
}

// ErrorByIndex is the inverse of ErrorIndex. It returns nil for an unknown index.
func ErrorByIndex(i int) error {
	if i < 0 || i >= len(moduleErrors) {
		return nil
	}
	return moduleErrors[i]
}
