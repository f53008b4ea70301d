// Package listing holds the per-session field store that reconciles user
// edits, AI suggestions and schema defaults for a listing form.
//
// Precedence is user > ai > default. Once a field has been edited by the user
// an AI suggestion only updates the record's pending suggestion; ai and
// default values are freely overwritten by the next suggestion or edit.
package listing

import (
	"sort"
	"sync"

	"github.com/matthewbaird/mobi/internal/types"
)

// Op names the store operation that produced a snapshot.
type Op string

const (
	OpSubscribe Op = "subscribe"
	OpSetValue  Op = "set_value"
	OpSuggest   Op = "suggest"
	OpInit      Op = "init"
	OpAccept    Op = "accept"
	OpReset     Op = "reset"
	OpLoad      Op = "load"
)

// Change describes the mutation behind a snapshot. FieldID and Value are
// empty for reset, load and the initial subscribe delivery.
type Change struct {
	Op      Op
	FieldID string
	Value   types.Value
}

// Snapshot is what subscribers receive. State is shared between all
// subscribers of one mutation and must be treated as read-only.
type Snapshot struct {
	Version uint64
	Change  Change
	State   types.ListingState
}

// Listener receives snapshots synchronously. A listener may read from the
// store but must not call a mutating method.
type Listener func(Snapshot)

type subscriber struct {
	id uint64
	fn Listener
}

// Store is the single source of truth for one listing form. All methods are
// safe for concurrent use; every mutation has been delivered to all current
// subscribers by the time the mutating call returns.
type Store struct {
	// deliver serialises mutation + delivery so subscribers observe versions
	// in order.
	deliver sync.Mutex

	mu      sync.RWMutex
	state   types.ListingState
	version uint64
	subs    []subscriber
	nextSub uint64

	viewsOnce sync.Once
	values    *View
	pending   *View
}

// New creates a store seeded with a copy of initial. A nil initial state
// starts empty.
func New(initial types.ListingState) *Store {
	return &Store{state: initial.Clone()}
}

// SetFieldValue records a user edit. The pending suggestion is preserved.
// It returns the version the edit produced.
func (s *Store) SetFieldValue(id string, v types.Value) uint64 {
	return s.update(Change{Op: OpSetValue, FieldID: id, Value: v}, func(st types.ListingState) bool {
		rec := st[id]
		st[id] = types.FieldRecord{
			Value:             v,
			Origin:            types.OriginUser,
			UserModified:      true,
			PendingSuggestion: rec.PendingSuggestion,
		}
		return true
	})
}

// SetAISuggestion records a machine-originated candidate. It becomes the
// field value unless the user has already edited the field. It returns the
// version the suggestion produced.
func (s *Store) SetAISuggestion(id string, v types.Value) uint64 {
	return s.update(Change{Op: OpSuggest, FieldID: id, Value: v}, func(st types.ListingState) bool {
		suggestion := v
		rec, ok := st[id]
		if ok && rec.UserModified {
			rec.PendingSuggestion = &suggestion
			st[id] = rec
			return true
		}
		st[id] = types.FieldRecord{
			Value:             v,
			Origin:            types.OriginAI,
			PendingSuggestion: &suggestion,
		}
		return true
	})
}

// InitField seeds a default. It is a no-op when the field already has a
// record of any origin, in which case the current version is returned.
func (s *Store) InitField(id string, def types.Value) uint64 {
	return s.update(Change{Op: OpInit, FieldID: id, Value: def}, func(st types.ListingState) bool {
		if _, ok := st[id]; ok {
			return false
		}
		st[id] = types.FieldRecord{Value: def, Origin: types.OriginDefault}
		return true
	})
}

// AcceptSuggestion adopts a divergent pending suggestion as a user edit and
// returns the version it produced. The bool is false when the field has
// nothing to accept.
func (s *Store) AcceptSuggestion(id string) (uint64, bool) {
	var accepted bool
	version := s.update(Change{Op: OpAccept, FieldID: id}, func(st types.ListingState) bool {
		rec, ok := st[id]
		if !ok || rec.PendingSuggestion == nil || rec.PendingSuggestion.Equal(rec.Value) {
			return false
		}
		rec.Value = *rec.PendingSuggestion
		rec.Origin = types.OriginUser
		rec.UserModified = true
		st[id] = rec
		accepted = true
		return true
	})
	return version, accepted
}

// Reset discards every field.
func (s *Store) Reset() uint64 {
	return s.replace(Change{Op: OpReset}, types.ListingState{})
}

// LoadState replaces the whole mapping with a copy of state. The snapshot is
// trusted: records are not checked for origin/flag consistency.
func (s *Store) LoadState(state types.ListingState) uint64 {
	return s.replace(Change{Op: OpLoad}, state.Clone())
}

// ApplyManifest seeds defaults for every descriptor in schema order, then
// applies every extracted value as an AI suggestion in id order.
func (s *Store) ApplyManifest(m types.Manifest) {
	for _, desc := range m.UISchema {
		s.InitField(desc.ID, desc.Default)
	}
	ids := make([]string, 0, len(m.ExtractedData))
	for id := range m.ExtractedData {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.SetAISuggestion(id, m.ExtractedData[id])
	}
}

// GetFieldValue returns the field's value, or Null for unknown fields.
func (s *Store) GetFieldValue(id string) types.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[id].Value
}

// Record returns a copy of one field record.
func (s *Store) Record(id string) (types.FieldRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state[id]
	return rec.Clone(), ok
}

// ToJSON returns the flat id -> value payload with provenance stripped.
func (s *Store) ToJSON() map[string]types.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ValuesOf(s.state)
}

// State returns a deep copy of the full mapping.
func (s *Store) State() types.ListingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Snapshot returns the version and a deep copy of the mapping, read
// together.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.version, State: s.state.Clone()}
}

// Version returns the number of mutations applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn and immediately delivers the current snapshot to
// it. The returned func removes the subscription; it is safe to call more
// than once and from inside a listener.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	snap := Snapshot{Version: s.version, Change: Change{Op: OpSubscribe}, State: s.state.Clone()}
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// update applies fn to the live mapping and, if fn reports a change,
// notifies every subscriber before returning. It returns the resulting
// version.
func (s *Store) update(c Change, fn func(types.ListingState) bool) uint64 {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if !fn(s.state) {
		v := s.version
		s.mu.Unlock()
		return v
	}
	snap, subs := s.commitLocked(c)
	s.mu.Unlock()

	notify(subs, snap)
	return snap.Version
}

func (s *Store) replace(c Change, next types.ListingState) uint64 {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.state = next
	snap, subs := s.commitLocked(c)
	s.mu.Unlock()

	notify(subs, snap)
	return snap.Version
}

func (s *Store) commitLocked(c Change) (Snapshot, []subscriber) {
	s.version++
	snap := Snapshot{Version: s.version, Change: c, State: s.state.Clone()}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	return snap, subs
}

func notify(subs []subscriber, snap Snapshot) {
	for _, sub := range subs {
		sub.fn(snap)
	}
}
