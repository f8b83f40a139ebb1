package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/internal/poe"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// EventRecord is a deposited event as persisted in the event log.
type EventRecord struct {
	Seq    uint64         `json:"seq"`
	Height uint64         `json:"height"`
	Kind   string         `json:"kind"`
	Who    types.Address  `json:"who"`
	To     *types.Address `json:"to,omitempty"`
	Proof  string         `json:"proof"` // hex
}

func newEventRecord(seq, height uint64, ev poe.Event) EventRecord {
	rec := EventRecord{
		Seq:    seq,
		Height: height,
		Kind:   ev.Kind.String(),
		Who:    ev.Who,
		Proof:  hex.EncodeToString(ev.Proof),
	}
	if ev.Kind == poe.EventClaimTransferred {
		to := ev.To
		rec.To = &to
	}
	return rec
}

// Event converts the record back to a registry event.
func (r EventRecord) Event() (poe.Event, error) {
	kind, err := poe.ParseEventKind(r.Kind)
	if err != nil {
		return poe.Event{}, err
	}
	proof, err := hex.DecodeString(r.Proof)
	if err != nil {
		return poe.Event{}, fmt.Errorf("event proof: %w", err)
	}
	ev := poe.Event{Kind: kind, Who: r.Who, Proof: proof}
	if r.To != nil {
		ev.To = *r.To
	}
	return ev, nil
}

// eventKey builds an event log key: "e/" + seq(8).
func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}

// Events returns up to limit event records starting at sequence from.
// A limit of zero or less returns every remaining record.
func (l *Ledger) Events(from uint64, limit int) ([]EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []EventRecord
	for seq := from; seq < l.eventSeq; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		data, err := l.db.Get(eventKey(seq))
		if err != nil {
			return nil, fmt.Errorf("event get %d: %w", seq, err)
		}
		var rec EventRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("event unmarshal %d: %w", seq, err)
		}
		if _, err := rec.Event(); err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// EventCount returns the number of events in the log.
func (l *Ledger) EventCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventSeq
}
