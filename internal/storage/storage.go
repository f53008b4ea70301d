// Package storage persists saved listings and session snapshots.
//
// SQLStore runs on SQLite (modernc.org/sqlite) or Postgres (pgx) through the
// ent SQL builder; MemoryStore implements the same contract for tests and
// demos.
package storage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/types"
)

// ErrNotFound is returned when a listing or snapshot does not exist.
var ErrNotFound = eris.New("not found")

// ErrInvalidStatus is returned by SaveListing for unknown statuses.
var ErrInvalidStatus = eris.New("invalid listing status")

// Snapshot is a persisted session state.
type Snapshot struct {
	SessionID string             `json:"session_id"`
	State     types.ListingState `json:"state"`
	SavedAt   time.Time          `json:"saved_at"`
}

// ListOptions filters ListListings.
type ListOptions struct {
	Status types.ListingStatus // empty: any status
	Limit  int                 // default 50, max 500
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 50
	}
	return o.Limit
}

// Store is the persistence contract.
type Store interface {
	// SaveListing inserts l, or updates it when l.ID already exists. An empty
	// ID is assigned, an empty status defaults to draft. CreatedAt of an
	// existing listing is kept.
	SaveListing(ctx context.Context, l types.Listing) (types.Listing, error)
	GetListing(ctx context.Context, id string) (types.Listing, error)
	// ListListings returns listings newest first.
	ListListings(ctx context.Context, opts ListOptions) ([]types.Listing, error)

	SaveSnapshot(ctx context.Context, sessionID string, state types.ListingState) (Snapshot, error)
	LoadSnapshot(ctx context.Context, sessionID string) (Snapshot, error)

	// Migrate creates the tables the store needs. It is idempotent.
	Migrate(ctx context.Context) error
}

// prepareListing fills defaults shared by every Store implementation.
func prepareListing(l types.Listing, newID func() string, now time.Time) (types.Listing, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.Status == "" {
		l.Status = types.ListingDraft
	}
	if !l.Status.Valid() {
		return types.Listing{}, eris.Wrapf(ErrInvalidStatus, "%q", l.Status)
	}
	if l.Fields == nil {
		l.Fields = map[string]types.Value{}
	}
	if l.PropertyType == "" {
		if s, ok := l.Fields[schema.PropertyTypeID].Str(); ok {
			l.PropertyType = s
		}
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	return l, nil
}
