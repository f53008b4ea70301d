package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

// MemoryStore implements Store in memory.
// Intended for demos and testing; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[string]types.Listing
	snapshots map[string]Snapshot
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:  make(map[string]types.Listing),
		snapshots: make(map[string]Snapshot),
		now:       time.Now,
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) SaveListing(_ context.Context, l types.Listing) (types.Listing, error) {
	l, err := prepareListing(l, uuid.NewString, s.now().UTC())
	if err != nil {
		return types.Listing{}, err
	}
	l.Fields = copyFields(l.Fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.listings[l.ID]; ok {
		l.CreatedAt = existing.CreatedAt
	}
	s.listings[l.ID] = l
	return cloneListing(l), nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (types.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return types.Listing{}, eris.Wrapf(ErrNotFound, "listing %s", id)
	}
	return cloneListing(l), nil
}

func (s *MemoryStore) ListListings(_ context.Context, opts ListOptions) ([]types.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.Listing{}
	for _, l := range s.listings {
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		out = append(out, cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if n := opts.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, sessionID string, state types.ListingState) (Snapshot, error) {
	snap := Snapshot{SessionID: sessionID, State: state.Clone(), SavedAt: s.now().UTC()}
	s.mu.Lock()
	s.snapshots[sessionID] = snap
	s.mu.Unlock()
	return Snapshot{SessionID: sessionID, State: snap.State.Clone(), SavedAt: snap.SavedAt}, nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, sessionID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return Snapshot{}, eris.Wrapf(ErrNotFound, "snapshot %s", sessionID)
	}
	snap.State = snap.State.Clone()
	return snap, nil
}

func cloneListing(l types.Listing) types.Listing {
	l.Fields = copyFields(l.Fields)
	return l
}

func copyFields(m map[string]types.Value) map[string]types.Value {
	out := make(map[string]types.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
