package poe

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

// EventKind identifies an event variant.
type EventKind uint8

// Event variants.
const (
	EventClaimCreated     EventKind = 1
	EventClaimRevoked     EventKind = 2
	EventClaimTransferred EventKind = 3
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventClaimCreated:
		return "ClaimCreated"
	case EventClaimRevoked:
		return "ClaimRevoked"
	case EventClaimTransferred:
		return "ClaimTransferred"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "ClaimCreated":
		return EventClaimCreated, nil
	case "ClaimRevoked":
		return EventClaimRevoked, nil
	case "ClaimTransferred":
		return EventClaimTransferred, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Event is a record deposited by a successful transition.
// To is only set for ClaimTransferred.
type Event struct {
	Kind  EventKind
	Who   types.Address
	To    types.Address
	Proof []byte
}

// ClaimCreated builds a creation event.
func ClaimCreated(who types.Address, proof []byte) Event {
	return Event{Kind: EventClaimCreated, Who: who, Proof: cloneBytes(proof)}
}

// ClaimRevoked builds a revocation event.
func ClaimRevoked(who types.Address, proof []byte) Event {
	return Event{Kind: EventClaimRevoked, Who: who, Proof: cloneBytes(proof)}
}

// ClaimTransferred builds a transfer event.
func ClaimTransferred(from, to types.Address, proof []byte) Event {
	return Event{Kind: EventClaimTransferred, Who: from, To: to, Proof: cloneBytes(proof)}
}

// EventSink receives events from successful transitions.
type EventSink interface {
	Deposit(Event)
}

// EventBuffer is an in-memory EventSink that keeps events in deposit order.
type EventBuffer struct {
	events []Event
}

// Deposit appends an event.
func (b *EventBuffer) Deposit(ev Event) {
	b.events = append(b.events, ev)
}

// Events returns the buffered events.
func (b *EventBuffer) Events() []Event {
	return b.events
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	return len(b.events)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}
