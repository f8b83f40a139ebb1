package poe

import "github.com/Klingon-tech/klingnet-poe/pkg/types"

// Origin carries the host's evidence of who dispatched a call.
// The module never inspects it; only the Authenticator does.
type Origin any

// Authenticator resolves an origin to the calling account.
type Authenticator interface {
	Authenticate(origin Origin) (types.Address, error)
}

// HeightOracle supplies the current block height.
type HeightOracle interface {
	BlockHeight() uint64
}

// Host bundles the capabilities a Module is embedded in.
type Host struct {
	Auth    Authenticator
	Heights HeightOracle
	Store   *Store
	Events  EventSink
}
