package storage

import (
	"context"
	"encoding/json"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

const (
	listingsTable  = "listings"
	snapshotsTable = "session_snapshots"
)

var listingColumns = []string{"id", "session_id", "status", "property_type", "fields", "created_at", "updated_at"}

// Timestamps are stored as unix nanoseconds so both dialects compare and
// order them the same way.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		property_type TEXT NOT NULL DEFAULT '',
		fields        TEXT NOT NULL,
		created_at    BIGINT NOT NULL,
		updated_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_created ON listings (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS session_snapshots (
		session_id TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		saved_at   BIGINT NOT NULL
	)`,
}

// SQLStore implements Store on top of an ent SQL driver.
type SQLStore struct {
	drv *entsql.Driver
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store over drv. Call Migrate before first use.
func NewSQLStore(drv *entsql.Driver) *SQLStore {
	return &SQLStore{drv: drv, now: time.Now}
}

// Driver returns the underlying ent driver.
func (s *SQLStore) Driver() *entsql.Driver { return s.drv }

// Close closes the database.
func (s *SQLStore) Close() error { return s.drv.Close() }

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// Migrate creates the listings and session_snapshots tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return eris.Wrap(err, "storage: migrate")
		}
	}
	return nil
}

func (s *SQLStore) SaveListing(ctx context.Context, l types.Listing) (types.Listing, error) {
	l, err := prepareListing(l, uuid.NewString, s.now().UTC())
	if err != nil {
		return types.Listing{}, err
	}
	fields, err := json.Marshal(l.Fields)
	if err != nil {
		return types.Listing{}, eris.Wrap(err, "storage: encode listing fields")
	}

	query, args := s.builder().Insert(listingsTable).
		Columns(listingColumns...).
		Values(l.ID, l.SessionID, string(l.Status), l.PropertyType, string(fields), l.CreatedAt.UnixNano(), l.UpdatedAt.UnixNano()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("session_id")
				u.SetExcluded("status")
				u.SetExcluded("property_type")
				u.SetExcluded("fields")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return types.Listing{}, eris.Wrapf(err, "storage: save listing %s", l.ID)
	}
	return s.GetListing(ctx, l.ID)
}

func (s *SQLStore) GetListing(ctx context.Context, id string) (types.Listing, error) {
	b := s.builder()
	query, args := b.Select(listingColumns...).
		From(b.Table(listingsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	listings, err := s.queryListings(ctx, query, args)
	if err != nil {
		return types.Listing{}, eris.Wrapf(err, "storage: get listing %s", id)
	}
	if len(listings) == 0 {
		return types.Listing{}, eris.Wrapf(ErrNotFound, "listing %s", id)
	}
	return listings[0], nil
}

func (s *SQLStore) ListListings(ctx context.Context, opts ListOptions) ([]types.Listing, error) {
	b := s.builder()
	sel := b.Select(listingColumns...).From(b.Table(listingsTable))
	if opts.Status != "" {
		sel.Where(entsql.EQ("status", string(opts.Status)))
	}
	query, args := sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).Limit(opts.limit()).Query()

	listings, err := s.queryListings(ctx, query, args)
	if err != nil {
		return nil, eris.Wrap(err, "storage: list listings")
	}
	return listings, nil
}

func (s *SQLStore) queryListings(ctx context.Context, query string, args []any) ([]types.Listing, error) {
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []types.Listing{}
	for rows.Next() {
		var (
			l                types.Listing
			status, fields   string
			created, updated int64
		)
		if err := rows.Scan(&l.ID, &l.SessionID, &status, &l.PropertyType, &fields, &created, &updated); err != nil {
			return nil, eris.Wrap(err, "scan listing")
		}
		l.Status = types.ListingStatus(status)
		if err := json.Unmarshal([]byte(fields), &l.Fields); err != nil {
			return nil, eris.Wrapf(err, "decode fields of listing %s", l.ID)
		}
		l.CreatedAt = time.Unix(0, created).UTC()
		l.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveSnapshot(ctx context.Context, sessionID string, state types.ListingState) (Snapshot, error) {
	if state == nil {
		state = types.ListingState{}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "storage: encode snapshot")
	}
	snap := Snapshot{SessionID: sessionID, State: state.Clone(), SavedAt: s.now().UTC()}

	query, args := s.builder().Insert(snapshotsTable).
		Columns("session_id", "state", "saved_at").
		Values(sessionID, string(payload), snap.SavedAt.UnixNano()).
		OnConflict(entsql.ConflictColumns("session_id"), entsql.ResolveWithNewValues()).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return Snapshot{}, eris.Wrapf(err, "storage: save snapshot %s", sessionID)
	}
	return snap, nil
}

func (s *SQLStore) LoadSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	b := s.builder()
	query, args := b.Select("state", "saved_at").
		From(b.Table(snapshotsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return Snapshot{}, eris.Wrapf(err, "storage: load snapshot %s", sessionID)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Snapshot{}, eris.Wrapf(err, "storage: load snapshot %s", sessionID)
		}
		return Snapshot{}, eris.Wrapf(ErrNotFound, "snapshot %s", sessionID)
	}
	var (
		payload string
		saved   int64
	)
	if err := rows.Scan(&payload, &saved); err != nil {
		return Snapshot{}, eris.Wrap(err, "storage: scan snapshot")
	}
	snap := Snapshot{SessionID: sessionID, SavedAt: time.Unix(0, saved).UTC()}
	if err := json.Unmarshal([]byte(payload), &snap.State); err != nil {
		return Snapshot{}, eris.Wrapf(err, "storage: decode snapshot %s", sessionID)
	}
	if snap.State == nil {
		snap.State = types.ListingState{}
	}
	return snap, nil
}
