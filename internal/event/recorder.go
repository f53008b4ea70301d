package event

import (
	"context"

	"github.com/matthewbaird/mobi/internal/listing"
)

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// Recorder turns the changes of one session's listing store into domain
// events and publishes them.
type Recorder struct {
	sessionID string
	pub       Publisher
}

// NewRecorder creates a Recorder for sessionID. A nil publisher discards
// every event.
func NewRecorder(sessionID string, pub Publisher) *Recorder {
	return &Recorder{sessionID: sessionID, pub: pub}
}

// Listen is a listing.Listener. It publishes one event per mutation and
// ignores the immediate delivery made on subscribe.
func (r *Recorder) Listen(snap listing.Snapshot) {
	evt, ok := FromChange(r.sessionID, snap)
	if !ok {
		return
	}
	r.Record(context.Background(), evt)
}

// Record publishes evt.
func (r *Recorder) Record(ctx context.Context, evt DomainEvent) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(ctx, evt)
}

// FromChange maps a store snapshot to its domain event.
func FromChange(sessionID string, snap listing.Snapshot) (DomainEvent, bool) {
	c := snap.Change
	switch c.Op {
	case listing.OpSetValue:
		return NewFieldEdited(sessionID, c.FieldID, c.Value), true
	case listing.OpSuggest:
		return NewSuggestionReceived(sessionID, c.FieldID, c.Value), true
	case listing.OpInit:
		return NewFieldInitialized(sessionID, c.FieldID, c.Value), true
	case listing.OpAccept:
		return NewSuggestionAccepted(sessionID, c.FieldID, snap.State[c.FieldID].Value), true
	case listing.OpReset:
		return NewSessionReset(sessionID), true
	case listing.OpLoad:
		return NewStateLoaded(sessionID, len(snap.State)), true
	default:
		return DomainEvent{}, false
	}
}
