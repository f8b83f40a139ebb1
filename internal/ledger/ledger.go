// Package ledger hosts the claim registry on a local database.
//
// The ledger supplies everything the registry consumes from its host:
// signed-call authentication with per-account nonces, a block-height
// counter, the keyed store and a persistent event log. Calls are
// dispatched one at a time; each runs against an overlay so that a
// successful call lands on disk in a single batch and a failed one leaves
// nothing behind except the consumed nonce.
package ledger

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-poe/config"
	"github.com/Klingon-tech/klingnet-poe/internal/log"
	"github.com/Klingon-tech/klingnet-poe/internal/poe"
	"github.com/Klingon-tech/klingnet-poe/internal/storage"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// Key prefixes and state keys for the ledger.
var (
	prefixNonce = []byte("n/") // n/<addr(20)> -> nonce(8)
	prefixEvent = []byte("e/") // e/<seq(8)> -> event JSON
	keyHeight   = []byte("m/height")
	keyParams   = []byte("m/params")
	keyID       = []byte("m/id")
	keyEventSeq = []byte("m/eventseq")
)

// Ledger errors.
var (
	ErrParamsMismatch = errors.New("ledger was initialised with different params")
	ErrUnknownMethod  = errors.New("unknown method")
	ErrClosed         = errors.New("ledger is closed")
)

// Receipt describes the outcome of a submitted call.
type Receipt struct {
	Height uint64        `json:"height"`
	Caller types.Address `json:"caller"`
	Nonce  uint64        `json:"nonce"`
	Events []EventRecord `json:"events,omitempty"`

	// ErrorIndex is the registry error index of a failed call, or -1.
	ErrorIndex int `json:"error_index"`
}

// Ledger is a single-writer host for the claim registry.
type Ledger struct {
	mu       sync.Mutex // Serialises dispatch and block production.
	db       storage.DB
	params   poe.Params
	id       types.Hash
	auth     *Authenticator
	height   uint64
	eventSeq uint64
	closed   bool
}

// Open loads ledger state from db and binds it to params. The first open
// records the params hash and a new ledger ID; later opens with different
// params fail with ErrParamsMismatch.
func Open(db storage.DB, params *config.Params) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if params == nil {
		return nil, fmt.Errorf("params are nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	hash, err := params.Hash()
	if err != nil {
		return nil, fmt.Errorf("params hash: %w", err)
	}
	var id types.Hash
	stored, err := db.Get(keyParams)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if id, err = initialise(db, hash); err != nil {
			return nil, err
		}
		log.Ledger.Info().
			Str("params", hash.String()).
			Str("id", id.String()).
			Msg("Ledger initialised")
	case err != nil:
		return nil, fmt.Errorf("params get: %w", err)
	case !bytes.Equal(stored, hash[:]):
		return nil, fmt.Errorf("%w: stored %x, have %s", ErrParamsMismatch, stored, hash)
	default:
		raw, err := db.Get(keyID)
		if err != nil {
			return nil, fmt.Errorf("ledger id get: %w", err)
		}
		if len(raw) != types.HashSize {
			return nil, fmt.Errorf("ledger id: bad length %d", len(raw))
		}
		copy(id[:], raw)
	}

	height, err := readUint64(db, keyHeight)
	if err != nil {
		return nil, fmt.Errorf("height get: %w", err)
	}
	eventSeq, err := readUint64(db, keyEventSeq)
	if err != nil {
		return nil, fmt.Errorf("event seq get: %w", err)
	}

	l := &Ledger{
		db:       db,
		params:   poe.ParamsFromConfig(params),
		id:       id,
		height:   height,
		eventSeq: eventSeq,
	}
	l.auth = NewAuthenticator(crypto.SchnorrVerifier{}, id, l.nonceLocked)

	log.Ledger.Debug().
		Uint64("height", height).
		Uint64("events", eventSeq).
		Msg("Ledger opened")
	return l, nil
}

// initialise records the params hash and a fresh ledger ID derived from
// it and a random salt, in one batch.
func initialise(db storage.DB, paramsHash types.Hash) (types.Hash, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return types.Hash{}, fmt.Errorf("ledger id salt: %w", err)
	}
	id := crypto.Hash(append(paramsHash.Bytes(), salt[:]...))

	batch := storage.NewBatch(db)
	if err := batch.Put(keyParams, paramsHash[:]); err != nil {
		return types.Hash{}, fmt.Errorf("params put: %w", err)
	}
	if err := batch.Put(keyID, id[:]); err != nil {
		return types.Hash{}, fmt.Errorf("ledger id put: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return types.Hash{}, fmt.Errorf("initialise ledger: %w", err)
	}
	return id, nil
}

// Params returns the registry parameters the ledger is bound to.
func (l *Ledger) Params() poe.Params {
	return l.params
}

// ID identifies the ledger. It is fixed when the ledger is initialised
// and every call must carry it.
func (l *Ledger) ID() types.Hash {
	return l.id
}

// Height returns the current block height.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// BlockHeight implements poe.HeightOracle. Only called during dispatch,
// with the lock held.
func (l *Ledger) BlockHeight() uint64 {
	return l.height
}

// AdvanceBlock raises the block height by n and returns the new height.
func (l *Ledger) AdvanceBlock(n uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	if n == 0 {
		return l.height, nil
	}
	next := l.height + n
	if next < l.height {
		return 0, fmt.Errorf("block height overflow")
	}
	if err := l.db.Put(keyHeight, encodeUint64(next)); err != nil {
		return 0, fmt.Errorf("height put: %w", err)
	}
	l.height = next
	log.Ledger.Debug().Uint64("height", next).Msg("Block advanced")
	return next, nil
}

// Nonce returns the next expected nonce for addr.
func (l *Ledger) Nonce(addr types.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonceLocked(addr)
}

func (l *Ledger) nonceLocked(addr types.Address) (uint64, error) {
	return readUint64(l.db, nonceKey(addr))
}

// Claim returns the claim bound to proof, if any.
func (l *Ledger) Claim(proof []byte) (poe.Claim, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.module(l.db, &poe.EventBuffer{}, l.auth).Proofs(proof)
}

// ClaimCount returns the number of bound proofs.
func (l *Ledger) ClaimCount() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return poe.NewStore(l.db).Count()
}

func (l *Ledger) module(db storage.DB, events poe.EventSink, auth poe.Authenticator) *poe.Module {
	return poe.New(l.params, poe.Host{
		Auth:    auth,
		Heights: l,
		Store:   poe.NewStore(db),
		Events:  events,
	})
}

// dispatch tracks the caller of one in-flight call.
type dispatch struct {
	auth   *Authenticator
	caller types.Address
	authed bool
}

func (d *dispatch) Authenticate(origin poe.Origin) (types.Address, error) {
	addr, err := d.auth.Authenticate(origin)
	if err != nil {
		return types.Address{}, err
	}
	d.caller = addr
	d.authed = true
	return addr, nil
}

// Submit dispatches a signed call. On success every write of the call,
// its events and the caller's nonce bump are committed in one batch.
// On failure the registry and event log are untouched; if the caller
// authenticated, the nonce is still consumed and the returned receipt
// carries the registry error index alongside the error.
func (l *Ledger) Submit(call *Call) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if call == nil {
		return nil, fmt.Errorf("call is nil")
	}

	defer log.Benchmark("submit " + call.Method.String())()

	overlay := storage.NewOverlay(l.db)
	d := &dispatch{auth: l.auth}
	events := &poe.EventBuffer{}
	m := l.module(overlay, events, d)

	var err error
	switch call.Method {
	case MethodCreateClaim:
		err = m.CreateClaim(call.Origin(), call.Proof)
	case MethodRevokeClaim:
		err = m.RevokeClaim(call.Origin(), call.Proof)
	case MethodTransferClaim:
		err = m.TransferClaim(call.Origin(), call.Proof, call.Dest)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownMethod, call.Method)
	}

	if err != nil {
		overlay.Discard()
		if !d.authed {
			log.Ledger.Warn().Str("method", call.Method.String()).Err(err).Msg("Call rejected")
			return nil, err
		}
		if bumpErr := l.bumpNonce(d.caller, call.Nonce); bumpErr != nil {
			return nil, fmt.Errorf("%w (nonce bump failed: %v)", err, bumpErr)
		}
		log.Ledger.Warn().
			Str("method", call.Method.String()).
			Str("caller", d.caller.String()).
			Hex("proof", call.Proof).
			Uint64("height", l.height).
			Err(err).
			Msg("Call failed")
		return &Receipt{
			Height:     l.height,
			Caller:     d.caller,
			Nonce:      call.Nonce,
			ErrorIndex: poe.ErrorIndex(err),
		}, err
	}

	records := make([]EventRecord, 0, events.Len())
	for i, ev := range events.Events() {
		rec := newEventRecord(l.eventSeq+uint64(i), l.height, ev)
		data, err := json.Marshal(rec)
		if err != nil {
			overlay.Discard()
			return nil, fmt.Errorf("event marshal: %w", err)
		}
		if err := overlay.Put(eventKey(rec.Seq), data); err != nil {
			overlay.Discard()
			return nil, fmt.Errorf("event put: %w", err)
		}
		records = append(records, rec)
	}
	nextSeq := l.eventSeq + uint64(len(records))
	if err := overlay.Put(keyEventSeq, encodeUint64(nextSeq)); err != nil {
		overlay.Discard()
		return nil, fmt.Errorf("event seq put: %w", err)
	}
	if err := overlay.Put(nonceKey(d.caller), encodeUint64(call.Nonce+1)); err != nil {
		overlay.Discard()
		return nil, fmt.Errorf("nonce put: %w", err)
	}
	if err := overlay.Commit(); err != nil {
		overlay.Discard()
		return nil, fmt.Errorf("commit call: %w", err)
	}
	l.eventSeq = nextSeq

	log.Ledger.Debug().
		Str("method", call.Method.String()).
		Str("caller", d.caller.String()).
		Hex("proof", call.Proof).
		Uint64("height", l.height).
		Int("events", len(records)).
		Msg("Call applied")

	return &Receipt{
		Height:     l.height,
		Caller:     d.caller,
		Nonce:      call.Nonce,
		Events:     records,
		ErrorIndex: -1,
	}, nil
}

// bumpNonce persists the nonce following a consumed call.
func (l *Ledger) bumpNonce(addr types.Address, used uint64) error {
	batch := storage.NewBatch(l.db)
	if err := batch.Put(nonceKey(addr), encodeUint64(used+1)); err != nil {
		return err
	}
	return batch.Commit()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// nonceKey builds a nonce key: "n/" + addr(20).
func nonceKey(addr types.Address) []byte {
	key := make([]byte, len(prefixNonce)+types.AddressSize)
	copy(key, prefixNonce)
	copy(key[len(prefixNonce):], addr[:])
	return key
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// readUint64 reads a big-endian counter, treating a missing key as zero.
func readUint64(db storage.DB, key []byte) (uint64, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("counter %q: want 8 bytes, got %d", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
