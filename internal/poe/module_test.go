package poe

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/Klingon-tech/klingnet-poe/internal/storage"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

var errBadOrigin = errors.New("bad origin")

// signedOrigin is the test host's origin: the account itself.
type signedOrigin types.Address

type unsignedOrigin struct{}

type testAuth struct{}

func (testAuth) Authenticate(o Origin) (types.Address, error) {
	if s, ok := o.(signedOrigin); ok {
		return types.Address(s), nil
	}
	return types.Address{}, errBadOrigin
}

type testHeights struct{ h uint64 }

func (t *testHeights) BlockHeight() uint64 { return t.h }

func account(n byte) types.Address {
	var a types.Address
	a[types.AddressSize-1] = n
	return a
}

func signed(n byte) Origin { return signedOrigin(account(n)) }

type harness struct {
	m       *Module
	db      *storage.MemoryDB
	events  *EventBuffer
	heights *testHeights
}

func newHarness(t *testing.T, params Params) *harness {
	t.Helper()
	h := &harness{
		db:      storage.NewMemory(),
		events:  &EventBuffer{},
		heights: &testHeights{h: 1},
	}
	h.m = New(params, Host{
		Auth:    testAuth{},
		Heights: h.heights,
		Store:   NewStore(h.db),
		Events:  h.events,
	})
	return h
}

// snapshot captures the raw database and event log.
func (h *harness) snapshot(t *testing.T) (map[string]string, []Event) {
	t.Helper()
	db := make(map[string]string)
	err := h.db.ForEach(nil, func(k, v []byte) error {
		db[string(k)] = string(v)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error: %v", err)
	}
	evs := append([]Event(nil), h.events.Events()...)
	return db, evs
}

func (h *harness) requireUnchanged(t *testing.T, db map[string]string, evs []Event) {
	t.Helper()
	gotDB, gotEvs := h.snapshot(t)
	if len(gotDB) != len(db) {
		t.Fatalf("store size changed: %d -> %d", len(db), len(gotDB))
	}
	for k, v := range db {
		if gotDB[k] != v {
			t.Fatalf("store entry %x changed", k)
		}
	}
	if len(gotEvs) != len(evs) {
		t.Fatalf("event count changed: %d -> %d", len(evs), len(gotEvs))
	}
}

func (h *harness) mustClaim(t *testing.T, proof []byte) Claim {
	t.Helper()
	c, ok, err := h.m.Proofs(proof)
	if err != nil {
		t.Fatalf("Proofs() error: %v", err)
	}
	if !ok {
		t.Fatalf("proof %x should be present", proof)
	}
	return c
}

func sameEvent(a, b Event) bool {
	return a.Kind == b.Kind && a.Who == b.Who && a.To == b.To && bytes.Equal(a.Proof, b.Proof)
}

// The concrete scenarios below run with a three-byte limit.
var smallParams = Params{MaxProofLength: 3}

func TestCreateClaim_OK(t *testing.T) {
	h := newHarness(t, smallParams)
	h.heights.h = 7

	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	c := h.mustClaim(t, []byte{0, 1})
	if c.Owner != account(1) || c.Height != 7 {
		t.Errorf("claim = %+v, want owner %s height 7", c, account(1))
	}
	evs := h.events.Events()
	if len(evs) != 1 || !sameEvent(evs[0], ClaimCreated(account(1), []byte{0, 1})) {
		t.Errorf("events = %+v, want one ClaimCreated", evs)
	}
}

func TestCreateClaim_Duplicate(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	db, evs := h.snapshot(t)

	err := h.m.CreateClaim(signed(1), []byte{0, 1})
	if !errors.Is(err, ErrProofAlreadyClaimed) {
		t.Fatalf("error = %v, want ErrProofAlreadyClaimed", err)
	}
	h.requireUnchanged(t, db, evs)

	// Another account cannot claim it either.
	if err := h.m.CreateClaim(signed(2), []byte{0, 1}); !errors.Is(err, ErrProofAlreadyClaimed) {
		t.Fatalf("error = %v, want ErrProofAlreadyClaimed", err)
	}
}

func TestRevokeClaim_OK(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	if err := h.m.RevokeClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("RevokeClaim() error: %v", err)
	}

	if _, ok, _ := h.m.Proofs([]byte{0, 1}); ok {
		t.Error("proof should be absent after revoke")
	}
	evs := h.events.Events()
	if len(evs) != 2 || !sameEvent(evs[1], ClaimRevoked(account(1), []byte{0, 1})) {
		t.Errorf("events = %+v, want ClaimCreated then ClaimRevoked", evs)
	}
	if h.db.Len() != 0 {
		t.Errorf("store should be empty, has %d entries", h.db.Len())
	}
}

func TestRevokeClaim_Missing(t *testing.T) {
	h := newHarness(t, smallParams)
	err := h.m.RevokeClaim(signed(1), []byte{0, 1})
	if !errors.Is(err, ErrNoSuchProof) {
		t.Fatalf("error = %v, want ErrNoSuchProof", err)
	}
	if h.events.Len() != 0 {
		t.Error("no events expected")
	}
}

func TestRevokeClaim_WrongOwner(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	db, evs := h.snapshot(t)

	err := h.m.RevokeClaim(signed(2), []byte{0, 1})
	if !errors.Is(err, ErrNotProofOwner) {
		t.Fatalf("error = %v, want ErrNotProofOwner", err)
	}
	h.requireUnchanged(t, db, evs)
}

func TestRevokeClaim_OverLongIsMissing(t *testing.T) {
	h := newHarness(t, smallParams)
	err := h.m.RevokeClaim(signed(1), []byte{0, 1, 2, 3})
	if !errors.Is(err, ErrNoSuchProof) {
		t.Fatalf("error = %v, want ErrNoSuchProof", err)
	}
}

func TestTransferClaim_OK(t *testing.T) {
	h := newHarness(t, smallParams)
	h.heights.h = 3
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	h.heights.h = 9
	if err := h.m.TransferClaim(signed(1), []byte{0, 1}, account(2)); err != nil {
		t.Fatalf("TransferClaim() error: %v", err)
	}

	c := h.mustClaim(t, []byte{0, 1})
	if c.Owner != account(2) || c.Height != 9 {
		t.Errorf("claim = %+v, want owner %s height 9", c, account(2))
	}
	if h.events.Len() != 1 {
		t.Errorf("transfer must not emit by default, got %d events", h.events.Len())
	}

	if err := h.m.RevokeClaim(signed(1), []byte{0, 1}); !errors.Is(err, ErrNotProofOwner) {
		t.Fatalf("old owner revoke error = %v, want ErrNotProofOwner", err)
	}
	if err := h.m.RevokeClaim(signed(2), []byte{0, 1}); err != nil {
		t.Fatalf("new owner RevokeClaim() error: %v", err)
	}
}

func TestTransferClaim_Missing(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	db, evs := h.snapshot(t)

	err := h.m.TransferClaim(signed(1), []byte{2, 1}, account(2))
	if !errors.Is(err, ErrNoSuchProof) {
		t.Fatalf("error = %v, want ErrNoSuchProof", err)
	}
	h.requireUnchanged(t, db, evs)
}

func TestTransferClaim_WrongOwner(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	db, evs := h.snapshot(t)

	err := h.m.TransferClaim(signed(2), []byte{0, 1}, account(2))
	if !errors.Is(err, ErrNotProofOwner) {
		t.Fatalf("error = %v, want ErrNotProofOwner", err)
	}
	h.requireUnchanged(t, db, evs)
}

func TestTransferClaim_TooLong(t *testing.T) {
	h := newHarness(t, smallParams)
	err := h.m.TransferClaim(signed(1), []byte{0, 1, 2, 3}, account(2))
	if !errors.Is(err, ErrClaimTooLong) {
		t.Fatalf("error = %v, want ErrClaimTooLong", err)
	}
}

func TestTransferClaim_ToSelfRefreshesHeight(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{5}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	h.heights.h = 42
	if err := h.m.TransferClaim(signed(1), []byte{5}, account(1)); err != nil {
		t.Fatalf("TransferClaim() error: %v", err)
	}
	c := h.mustClaim(t, []byte{5})
	if c.Owner != account(1) || c.Height != 42 {
		t.Errorf("claim = %+v, want owner unchanged at height 42", c)
	}
}

func TestTransferClaim_EmitEvents(t *testing.T) {
	h := newHarness(t, Params{MaxProofLength: 3, EmitTransferEvents: true})
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	if err := h.m.TransferClaim(signed(1), []byte{0, 1}, account(2)); err != nil {
		t.Fatalf("TransferClaim() error: %v", err)
	}
	evs := h.events.Events()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if !sameEvent(evs[1], ClaimTransferred(account(1), account(2), []byte{0, 1})) {
		t.Errorf("event = %+v, want ClaimTransferred", evs[1])
	}

	// A failed transfer still emits nothing.
	if err := h.m.TransferClaim(signed(1), []byte{0, 1}, account(3)); !errors.Is(err, ErrNotProofOwner) {
		t.Fatalf("error = %v, want ErrNotProofOwner", err)
	}
	if h.events.Len() != 2 {
		t.Errorf("failed transfer emitted an event")
	}
}

func TestCreateClaim_TooLong(t *testing.T) {
	h := newHarness(t, smallParams)
	err := h.m.CreateClaim(signed(1), []byte{0, 1, 2, 3})
	if !errors.Is(err, ErrClaimTooLong) {
		t.Fatalf("error = %v, want ErrClaimTooLong", err)
	}
	if h.db.Len() != 0 || h.events.Len() != 0 {
		t.Error("failed create must not touch store or events")
	}
}

func TestCreateClaim_LengthBoundary(t *testing.T) {
	tests := []struct {
		name    string
		proof   []byte
		wantErr error
	}{
		{"empty", []byte{}, nil},
		{"nil", nil, nil},
		{"one byte", []byte{9}, nil},
		{"at limit", []byte{1, 2, 3}, nil},
		{"one over", []byte{1, 2, 3, 4}, ErrClaimTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, smallParams)
			err := h.m.CreateClaim(signed(1), tt.proof)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateClaim() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateClaim_ZeroLimitAcceptsOnlyEmpty(t *testing.T) {
	h := newHarness(t, Params{MaxProofLength: 0})
	if err := h.m.CreateClaim(signed(1), []byte{7}); !errors.Is(err, ErrClaimTooLong) {
		t.Fatalf("one-byte proof error = %v, want ErrClaimTooLong", err)
	}
	if err := h.m.CreateClaim(signed(1), nil); err != nil {
		t.Fatalf("CreateClaim(empty) error: %v", err)
	}
	if c := h.mustClaim(t, nil); c.Owner != account(1) {
		t.Errorf("owner = %v, want %v", c.Owner, account(1))
	}
}

func TestCreateClaim_EmptyAndNilAreSameProof(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	if err := h.m.CreateClaim(signed(2), nil); !errors.Is(err, ErrProofAlreadyClaimed) {
		t.Fatalf("error = %v, want ErrProofAlreadyClaimed", err)
	}
}

func TestCreateClaim_LengthCheckedBeforeExistence(t *testing.T) {
	h := newHarness(t, Params{MaxProofLength: 4})
	if err := h.m.CreateClaim(signed(1), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	// Same proof under a tighter limit: length wins over existence.
	tight := New(Params{MaxProofLength: 3}, h.m.host)
	if err := tight.CreateClaim(signed(1), []byte{1, 2, 3, 4}); !errors.Is(err, ErrClaimTooLong) {
		t.Fatalf("error = %v, want ErrClaimTooLong", err)
	}
}

func TestTransitions_AuthErrorPropagates(t *testing.T) {
	h := newHarness(t, smallParams)
	if err := h.m.CreateClaim(signed(1), []byte{0, 1}); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	db, evs := h.snapshot(t)

	calls := map[string]func() error{
		"create":   func() error { return h.m.CreateClaim(unsignedOrigin{}, []byte{7}) },
		"revoke":   func() error { return h.m.RevokeClaim(unsignedOrigin{}, []byte{0, 1}) },
		"transfer": func() error { return h.m.TransferClaim(unsignedOrigin{}, []byte{0, 1}, account(2)) },
		// Authentication runs before the length guard.
		"create too long": func() error { return h.m.CreateClaim(unsignedOrigin{}, []byte{1, 2, 3, 4, 5}) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if err != errBadOrigin {
				t.Fatalf("error = %v, want the authenticator's error unchanged", err)
			}
			if ErrorIndex(err) != -1 {
				t.Errorf("auth error should not map to a registry index")
			}
			h.requireUnchanged(t, db, evs)
		})
	}
}

func TestProofs_Absent(t *testing.T) {
	h := newHarness(t, smallParams)
	c, ok, err := h.m.Proofs([]byte{1})
	if err != nil {
		t.Fatalf("Proofs() error: %v", err)
	}
	if ok {
		t.Error("absent proof reported present")
	}
	if c != (Claim{}) {
		t.Errorf("absent claim = %+v, want zero value", c)
	}
}

// model is a reference registry used to check random transition sequences.
type model struct {
	claims map[string]Claim
	events []Event
}

// TestTransitions_RandomSequences checks uniqueness, owner and height
// fidelity, the length bound, atomicity and event correspondence over
// random call sequences.
func TestTransitions_RandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		h := newHarness(t, smallParams)
		rng := rand.New(rand.NewSource(seed))
		ref := model{claims: make(map[string]Claim)}

		for step := 0; step < 300; step++ {
			if rng.Intn(4) == 0 {
				h.heights.h++
			}
			caller := byte(rng.Intn(3) + 1)
			proof := make([]byte, rng.Intn(5))
			for i := range proof {
				proof[i] = byte(rng.Intn(2))
			}
			dest := account(byte(rng.Intn(3) + 1))

			db, evs := h.snapshot(t)
			var err error
			op := rng.Intn(3)
			switch op {
			case 0:
				err = h.m.CreateClaim(signed(caller), proof)
			case 1:
				err = h.m.RevokeClaim(signed(caller), proof)
			case 2:
				err = h.m.TransferClaim(signed(caller), proof, dest)
			}

			if err != nil {
				if ErrorIndex(err) < 0 {
					t.Fatalf("seed %d step %d: unexpected error %v", seed, step, err)
				}
				h.requireUnchanged(t, db, evs)
				continue
			}

			who := account(caller)
			switch op {
			case 0:
				ref.claims[string(proof)] = Claim{Owner: who, Height: h.heights.h}
				ref.events = append(ref.events, ClaimCreated(who, proof))
			case 1:
				delete(ref.claims, string(proof))
				ref.events = append(ref.events, ClaimRevoked(who, proof))
			case 2:
				ref.claims[string(proof)] = Claim{Owner: dest, Height: h.heights.h}
			}
		}

		seen := make(map[string]bool)
		err := h.m.host.Store.ForEach(func(proof []byte, c Claim) error {
			if seen[string(proof)] {
				t.Fatalf("seed %d: proof %x appears twice", seed, proof)
			}
			seen[string(proof)] = true
			if len(proof) > smallParams.MaxProofLength {
				t.Fatalf("seed %d: stored proof %x exceeds limit", seed, proof)
			}
			want, ok := ref.claims[string(proof)]
			if !ok {
				t.Fatalf("seed %d: unexpected proof %x", seed, proof)
			}
			if c != want {
				t.Fatalf("seed %d: proof %x claim = %+v, want %+v", seed, proof, c, want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if len(seen) != len(ref.claims) {
			t.Fatalf("seed %d: %d proofs stored, want %d", seed, len(seen), len(ref.claims))
		}

		got := h.events.Events()
		if len(got) != len(ref.events) {
			t.Fatalf("seed %d: %d events, want %d", seed, len(got), len(ref.events))
		}
		for i := range got {
			if !sameEvent(got[i], ref.events[i]) {
				t.Fatalf("seed %d: event %d = %+v, want %+v", seed, i, got[i], ref.events[i])
			}
		}
	}
}

// failingDB fails every read.
type failingDB struct {
	storage.DB
}

var errDisk = errors.New("disk on fire")

func (failingDB) Has([]byte) (bool, error) {
	return false, errDisk
}

func (failingDB) Get([]byte) ([]byte, error) {
	return nil, errDisk
}

func TestTransitions_StorageErrorPropagates(t *testing.T) {
	events := &EventBuffer{}
	m := New(smallParams, Host{
		Auth:    testAuth{},
		Heights: &testHeights{h: 1},
		Store:   NewStore(failingDB{DB: storage.NewMemory()}),
		Events:  events,
	})

	if err := m.CreateClaim(signed(1), []byte{1}); !errors.Is(err, errDisk) {
		t.Fatalf("CreateClaim() error = %v, want wrapped disk error", err)
	}
	if err := m.RevokeClaim(signed(1), []byte{1}); !errors.Is(err, errDisk) {
		t.Fatalf("RevokeClaim() error = %v, want wrapped disk error", err)
	}
	if _, _, err := m.Proofs([]byte{1}); !errors.Is(err, errDisk) {
		t.Fatalf("Proofs() error = %v, want wrapped disk error", err)
	}
	if events.Len() != 0 {
		t.Error("no events expected on storage failure")
	}
}
