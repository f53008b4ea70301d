package listing

import (
	"sync"

	"github.com/matthewbaird/mobi/internal/types"
)

// Projection derives a flat id -> value map from the full state.
type Projection func(types.ListingState) map[string]types.Value

// ValuesOf projects every field to its current value.
func ValuesOf(state types.ListingState) map[string]types.Value {
	out := make(map[string]types.Value, len(state))
	for id, rec := range state {
		out[id] = rec.Value
	}
	return out
}

// PendingOf projects the fields whose pending suggestion differs from the
// current value. Fields without a divergent suggestion are omitted.
func PendingOf(state types.ListingState) map[string]types.Value {
	out := make(map[string]types.Value)
	for id, rec := range state {
		if rec.PendingSuggestion != nil && !rec.PendingSuggestion.Equal(rec.Value) {
			out[id] = *rec.PendingSuggestion
		}
	}
	return out
}

// View is a live projection of a Store. It recomputes on every store
// mutation and forwards the result to its own subscribers synchronously.
type View struct {
	store   *Store
	project Projection

	mu      sync.RWMutex
	current map[string]types.Value
	version uint64
	subs    []viewSubscriber
	nextSub uint64
}

type viewSubscriber struct {
	id uint64
	fn func(map[string]types.Value)
}

func newView(s *Store, project Projection) *View {
	v := &View{store: s, project: project}
	s.Subscribe(v.recompute)
	return v
}

// Values returns the live value projection (the toJSON view).
func (s *Store) Values() *View {
	s.initViews()
	return s.values
}

// PendingSuggestions returns the live pending-suggestion projection.
func (s *Store) PendingSuggestions() *View {
	s.initViews()
	return s.pending
}

// initViews must not run from inside a store listener: it subscribes.
func (s *Store) initViews() {
	s.viewsOnce.Do(func() {
		s.values = newView(s, ValuesOf)
		s.pending = newView(s, PendingOf)
	})
}

func (v *View) recompute(snap Snapshot) {
	next := v.project(snap.State)

	v.mu.Lock()
	v.current = next
	v.version = snap.Version
	subs := make([]viewSubscriber, len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, sub := range subs {
		sub.fn(copyValues(next))
	}
}

// Get returns a copy of the latest projection.
func (v *View) Get() map[string]types.Value {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copyValues(v.current)
}

// Version returns the store version the projection was computed from.
func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Subscribe delivers the current projection immediately and then after each
// store mutation. Like Store.Subscribe it must not be called from inside a
// listener.
func (v *View) Subscribe(fn func(map[string]types.Value)) (unsubscribe func()) {
	v.store.deliver.Lock()
	defer v.store.deliver.Unlock()

	v.mu.Lock()
	v.nextSub++
	id := v.nextSub
	v.subs = append(v.subs, viewSubscriber{id: id, fn: fn})
	cur := copyValues(v.current)
	v.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, sub := range v.subs {
				if sub.id == id {
					v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func copyValues(m map[string]types.Value) map[string]types.Value {
	out := make(map[string]types.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
