package activity

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/rotisserie/eris"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes entries. Entries whose event was already written
	// are ignored.
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryBySession returns a session's entries, newest first.
	QueryBySession(ctx context.Context, sessionID string, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)

	// Search performs case-insensitive substring search across summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []Entry, totalCount int, err error)
}

const entriesTable = "activity_entries"

var entryColumns = []string{"event_id", "event_type", "occurred_at", "session_id", "field_id", "summary", "category", "payload"}

// SQLStore implements Store on the activity_entries table.
type SQLStore struct {
	drv *entsql.Driver
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a new SQLStore.
func NewSQLStore(drv *entsql.Driver) *SQLStore {
	return &SQLStore{drv: drv}
}

// CreateTable creates the activity_entries table and its indexes.
// occurred_at holds unix nanoseconds.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_entries (
			event_id    TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			occurred_at BIGINT NOT NULL,
			session_id  TEXT NOT NULL,
			field_id    TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL,
			category    TEXT NOT NULL,
			payload     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_session_time
			ON activity_entries (session_id, occurred_at DESC)`,
	}
	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return eris.Wrap(err, "activity: create table")
		}
	}
	return nil
}

// WriteEntries inserts activity entries.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := entsql.Dialect(s.drv.Dialect()).Insert(entriesTable).Columns(entryColumns...)
	for _, e := range entries {
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(e.EventID, e.EventType, e.OccurredAt.UnixNano(), e.SessionID, e.FieldID, e.Summary, e.Category, payload)
	}
	query, args := ins.OnConflict(entsql.ConflictColumns("event_id"), entsql.DoNothing()).Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return eris.Wrap(err, "activity: write entries")
	}
	return nil
}

// QueryBySession returns activity entries for a session with filtering and pagination.
func (s *SQLStore) QueryBySession(ctx context.Context, sessionID string, opts QueryOptions) ([]Entry, string, int, error) {
	limit := opts.limit()
	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.EQ("session_id", sessionID)}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
		}
		if opts.Until != nil {
			preds = append(preds, entsql.LTE("occurred_at", opts.Until.UnixNano()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
		}
		if opts.FieldID != "" {
			preds = append(preds, entsql.EQ("field_id", opts.FieldID))
		}
		if cursor, ok := parseCursor(opts.Cursor); ok {
			preds = append(preds, entsql.LT("occurred_at", cursor.UnixNano()))
		}
		return entsql.And(preds...)
	}

	// Fetch one extra row to know whether there is a next page.
	entries, err := s.query(ctx, where(), limit+1)
	if err != nil {
		return nil, "", 0, eris.Wrap(err, "activity: query by session")
	}
	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = formatCursor(entries[len(entries)-1].OccurredAt)
	}

	total, err := s.count(ctx, where())
	if err != nil {
		return nil, "", 0, eris.Wrap(err, "activity: count by session")
	}
	return entries, nextCursor, total, nil
}

// Search performs case-insensitive search across activity summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
		if opts.SessionID != "" {
			preds = append(preds, entsql.EQ("session_id", opts.SessionID))
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
		}
		return entsql.And(preds...)
	}

	entries, err := s.query(ctx, where(), opts.limit())
	if err != nil {
		return nil, 0, eris.Wrap(err, "activity: search")
	}
	total, err := s.count(ctx, where())
	if err != nil {
		return nil, 0, eris.Wrap(err, "activity: count search")
	}
	return entries, total, nil
}

func (s *SQLStore) query(ctx context.Context, where *entsql.Predicate, limit int) ([]Entry, error) {
	b := entsql.Dialect(s.drv.Dialect())
	query, args := b.Select(entryColumns...).
		From(b.Table(entriesTable)).
		Where(where).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(limit).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			occurred int64
			payload  entsql.NullString
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &occurred, &e.SessionID, &e.FieldID, &e.Summary, &e.Category, &payload); err != nil {
			return nil, eris.Wrap(err, "scanning activity entry")
		}
		e.OccurredAt = time.Unix(0, occurred).UTC()
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) count(ctx context.Context, where *entsql.Predicate) (int, error) {
	b := entsql.Dialect(s.drv.Dialect())
	query, args := b.Select().Count().From(b.Table(entriesTable)).Where(where).Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close() //nolint:errcheck

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
