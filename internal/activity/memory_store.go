package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store using in-memory slices.
// Intended for demos and testing; no database required.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]bool // event_id
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.seen[e.EventID] {
			continue
		}
		s.seen[e.EventID] = true
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) QueryBySession(_ context.Context, sessionID string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, hasCursor := parseCursor(opts.Cursor)
	var matched []Entry
	for _, e := range s.entries {
		if e.SessionID != sessionID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Categories) > 0 && !contains(opts.Categories, e.Category) {
			continue
		}
		if opts.FieldID != "" && e.FieldID != opts.FieldID {
			continue
		}
		matched = append(matched, e)
	}

	// Sort by occurred_at DESC.
	sortNewestFirst(matched)
	if hasCursor {
		i := sort.Search(len(matched), func(i int) bool { return matched[i].OccurredAt.Before(cursor) })
		matched = matched[i:]
	}
	totalCount := len(matched)

	var nextCursor string
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
		nextCursor = formatCursor(matched[len(matched)-1].OccurredAt)
	}
	return matched, nextCursor, totalCount, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []Entry
	for _, e := range s.entries {
		if !strings.Contains(strings.ToLower(e.Summary), q) {
			continue
		}
		if opts.SessionID != "" && e.SessionID != opts.SessionID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if len(opts.Categories) > 0 && !contains(opts.Categories, e.Category) {
			continue
		}
		matched = append(matched, e)
	}

	sortNewestFirst(matched)
	totalCount := len(matched)
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, totalCount, nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
