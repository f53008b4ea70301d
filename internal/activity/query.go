// Package activity provides the per-session activity log: one entry per
// domain event, queryable by session and searchable by summary.
package activity

import (
	"encoding/json"
	"time"
)

// Entry is one activity log row.
type Entry struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	SessionID  string          `json:"session_id"`
	FieldID    string          `json:"field_id,omitempty"`
	Summary    string          `json:"summary"`
	Category   string          `json:"category"` // "edit", "suggestion", "lifecycle"
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// QueryOptions controls filtering and pagination for session activity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	Categories []string // filter to specific categories
	FieldID    string   // filter to one field
	Limit      int      // max results (default: 100, max: 500)
	Cursor     string   // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for activity search.
type SearchOptions struct {
	SessionID  string
	Since      *time.Time
	Categories []string
	Limit      int // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Limit: 100}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 20}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

func parseCursor(cursor string) (time.Time, bool) {
	if cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	return t, err == nil
}

func formatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
