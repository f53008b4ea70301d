package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/matthewbaird/mobi/internal/activity"
)

// ActivityHandler serves the activity log.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// GetSessionActivity returns a session's activity feed, newest first.
// GET /v1/sessions/{id}/activity
func (h *ActivityHandler) GetSessionActivity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if u := q.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		}
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	opts.FieldID = q.Get("field_id")
	opts.Limit = parseLimit(r, opts.Limit, 500)
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryBySession(r.Context(), sessionID, opts)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}

	writeJSON(w, http.StatusOK, struct {
		Activities []activity.Entry `json:"activities"`
		NextCursor string           `json:"next_cursor,omitempty"`
		TotalCount int              `json:"total_count"`
	}{entries, nextCursor, totalCount})
}

// SearchActivity searches activity summaries.
// GET /v1/activity/search?q=&session_id=&since=&categories=&limit=
func (h *ActivityHandler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "q is required")
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.SessionID = q.Get("session_id")
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	opts.Limit = parseLimit(r, opts.Limit, 100)

	entries, totalCount, err := h.store.Search(r.Context(), query, opts)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}

	writeJSON(w, http.StatusOK, struct {
		Results    []activity.Entry `json:"results"`
		TotalCount int              `json:"total_count"`
	}{entries, totalCount})
}
