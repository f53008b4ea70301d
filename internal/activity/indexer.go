package activity

import (
	"context"
	"time"

	"github.com/matthewbaird/mobi/internal/event"
)

// Indexer consumes domain events and writes one activity entry per event.
// It is subscribed to the event bus; ProcessEvent may also be called directly.
type Indexer struct {
	store   Store
	ignored map[string]bool
}

// NewIndexer creates a new activity indexer. Events of the ignored types are
// not written.
func NewIndexer(store Store, ignoredTypes ...string) *Indexer {
	idx := &Indexer{store: store, ignored: make(map[string]bool, len(ignoredTypes))}
	for _, t := range ignoredTypes {
		idx.ignored[t] = true
	}
	return idx
}

// HandleEvent implements eventbus.Handler.
func (idx *Indexer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return idx.ProcessEvent(ctx, evt)
}

// ProcessEvent converts evt to an Entry and writes it.
func (idx *Indexer) ProcessEvent(ctx context.Context, evt event.DomainEvent) error {
	if idx.ignored[evt.EventType] || evt.SessionID == "" {
		return nil
	}
	return idx.store.WriteEntries(ctx, []Entry{EntryFromEvent(evt)})
}

// EntryFromEvent builds the activity entry for evt.
func EntryFromEvent(evt event.DomainEvent) Entry {
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	summary := evt.Summary
	if summary == "" {
		summary = evt.EventType
	}
	category := evt.Category
	if category == "" {
		category = event.CategoryLifecycle
	}
	return Entry{
		EventID:    evt.ID,
		EventType:  evt.EventType,
		OccurredAt: occurred.UTC(),
		SessionID:  evt.SessionID,
		FieldID:    evt.FieldID,
		Summary:    summary,
		Category:   category,
		Payload:    evt.Payload,
	}
}
