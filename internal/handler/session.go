package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/mobi/internal/analysis"
	"github.com/matthewbaird/mobi/internal/event"
	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/listing"
	"github.com/matthewbaird/mobi/internal/metrics"
	"github.com/matthewbaird/mobi/internal/session"
	"github.com/matthewbaird/mobi/internal/storage"
	"github.com/matthewbaird/mobi/internal/types"
)

// SessionHandler implements the listing-session endpoints.
type SessionHandler struct {
	sessions *session.Manager
	analyzer analysis.Analyzer
	store    storage.Store
	metrics  *metrics.Metrics
}

// NewSessionHandler creates a new SessionHandler. m may be nil.
func NewSessionHandler(sessions *session.Manager, analyzer analysis.Analyzer, store storage.Store, m *metrics.Metrics) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		analyzer: analyzer,
		store:    store,
		metrics:  m,
	}
}

// SessionResponse is the full view of one session.
type SessionResponse struct {
	ID                   string                  `json:"id"`
	Version              uint64                  `json:"version"`
	State                types.ListingState      `json:"state"`
	Values               map[string]types.Value  `json:"values"`
	Pending              map[string]types.Value  `json:"pending"`
	Schema               []types.FieldDescriptor `json:"schema"`
	AIMessage            string                  `json:"ai_message,omitempty"`
	CompletionPercentage *float64                `json:"completion_percentage,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	LastActiveAt         time.Time               `json:"last_active_at"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	snap := s.Store.Snapshot()
	return SessionResponse{
		ID:                   s.ID,
		Version:              snap.Version,
		State:                snap.State,
		Values:               listing.ValuesOf(snap.State),
		Pending:              listing.PendingOf(snap.State),
		Schema:               s.Schema(),
		AIMessage:            s.AIMessage(),
		CompletionPercentage: s.Completion(),
		CreatedAt:            s.CreatedAt(),
		LastActiveAt:         s.LastActiveAt(),
	}
}

// session resolves the {id} path parameter to a live session.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	s := h.sessions.Get(id)
	if s == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "session not found: "+id)
		return nil, false
	}
	return s, true
}

// field resolves the {field} path parameter.
func field(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "field")
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidID, "field id is required")
		return "", false
	}
	return id, true
}

// CreateSession starts a session, optionally restored from a saved snapshot.
// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RestoreFrom string `json:"restore_from,omitempty"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body")
		return
	}

	if req.RestoreFrom == "" {
		s := h.sessions.Create(nil)
		writeJSON(w, http.StatusCreated, newSessionResponse(s))
		return
	}

	snap, err := h.store.LoadSnapshot(r.Context(), req.RestoreFrom)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	s := h.sessions.Create(snap.State)
	s.Record(r.Context(), event.NewSessionRestored(s.ID, req.RestoreFrom, len(snap.State)))
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

// GetSession returns the full session state.
// GET /v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// DeleteSession ends a session.
// DELETE /v1/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.sessions.Remove(s.ID)
	w.WriteHeader(http.StatusNoContent)
}

// GetForm renders the session schema through the field registry.
// GET /v1/sessions/{id}/form
func (h *SessionHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fields.Render(s.Schema(), s.Store))
}

type valueRequest struct {
	Value json.RawMessage `json:"value"`
}

// parseValue validates raw with the renderer of the field's schema entry.
// Fields outside the session schema accept any primitive.
func parseValue(s *session.Session, fieldID string, raw json.RawMessage) (types.Value, error) {
	desc, ok := s.Descriptor(fieldID)
	if !ok {
		desc = types.FieldDescriptor{ID: fieldID}
	}
	return fields.ParseFor(desc, raw)
}

// SetField records a user edit.
// PUT /v1/sessions/{id}/fields/{field}
func (h *SessionHandler) SetField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	fieldID, ok := field(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body")
		return
	}
	v, err := parseValue(s, fieldID, req.Value)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	s.Store.SetFieldValue(fieldID, v)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// InitField seeds a default. Without a value in the body the schema
// default is used.
// POST /v1/sessions/{id}/fields/{field}/init
func (h *SessionHandler) InitField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	fieldID, ok := field(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body")
		return
	}

	var v types.Value
	if len(req.Value) == 0 {
		if desc, ok := s.Descriptor(fieldID); ok {
			v = desc.Default
		}
	} else {
		var err error
		if v, err = parseValue(s, fieldID, req.Value); err != nil {
			errorToHTTP(w, err)
			return
		}
	}
	s.Store.InitField(fieldID, v)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// AddSuggestions applies AI suggestions in field id order.
// POST /v1/sessions/{id}/suggestions
func (h *SessionHandler) AddSuggestions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req map[string]types.Value
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "body must be an object of field id to primitive value")
		return
	}
	ids := make([]string, 0, len(req))
	for id := range req {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.Store.SetAISuggestion(id, req[id])
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// AcceptSuggestion adopts a field's pending suggestion.
// POST /v1/sessions/{id}/fields/{field}/accept
func (h *SessionHandler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	fieldID, ok := field(w, r)
	if !ok {
		return
	}
	_, accepted := s.Store.AcceptSuggestion(fieldID)
	writeJSON(w, http.StatusOK, struct {
		Accepted bool            `json:"accepted"`
		Session  SessionResponse `json:"session"`
	}{accepted, newSessionResponse(s)})
}

// Analyze runs one analysis step over the current values and applies the
// resulting manifest.
// POST /v1/sessions/{id}/analyze
func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req analysis.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body")
		return
	}
	req.CurrentData = s.Store.ToJSON()

	start := time.Now()
	m, err := h.analyzer.Analyze(r.Context(), req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.metrics.ObserveAnalysis(string(req.InputType), outcome, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) {
			errorToHTTP(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, CodeAnalysisFailed, err.Error())
		return
	}

	s.ApplyManifest(*m)
	s.Record(r.Context(), event.NewAnalysisCompleted(s.ID, analysisPayload(req.InputType, m)))

	writeJSON(w, http.StatusOK, struct {
		Manifest *types.Manifest `json:"manifest"`
		Session  SessionResponse `json:"session"`
	}{m, newSessionResponse(s)})
}

func analysisPayload(inputType analysis.InputType, m *types.Manifest) event.AnalysisCompletedPayload {
	p := event.AnalysisCompletedPayload{
		InputType:            string(inputType),
		Extracted:            make([]string, 0, len(m.ExtractedData)),
		NextFields:           make([]string, 0, len(m.UISchema)),
		CompletionPercentage: m.CompletionPercentage,
	}
	for id := range m.ExtractedData {
		p.Extracted = append(p.Extracted, id)
	}
	sort.Strings(p.Extracted)
	for _, d := range m.UISchema {
		p.NextFields = append(p.NextFields, d.ID)
	}
	return p
}

// Reset clears the form.
// POST /v1/sessions/{id}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ResetForm()
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// LoadState replaces the store contents with a snapshot.
// PUT /v1/sessions/{id}/state
func (h *SessionHandler) LoadState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var state types.ListingState
	if err := decodeJSON(r, &state); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "body must be a field id to record object")
		return
	}
	s.Store.LoadState(state)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// SaveSnapshot persists the full store state under the session id.
// POST /v1/sessions/{id}/snapshot
func (h *SessionHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := h.store.SaveSnapshot(r.Context(), s.ID, s.Store.State())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	s.Record(r.Context(), event.NewSnapshotSaved(s.ID, len(snap.State)))
	writeJSON(w, http.StatusCreated, snap)
}

// SaveListing stores the session's flat payload as a listing.
// POST /v1/sessions/{id}/listing
func (h *SessionHandler) SaveListing(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ID     string              `json:"id,omitempty"`
		Status types.ListingStatus `json:"status,omitempty"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body")
		return
	}

	l, err := h.store.SaveListing(r.Context(), types.Listing{
		ID:        strings.TrimSpace(req.ID),
		SessionID: s.ID,
		Status:    req.Status,
		Fields:    s.Store.ToJSON(),
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	s.Record(r.Context(), event.NewListingSaved(s.ID, l.ID, string(l.Status)))
	writeJSON(w, http.StatusCreated, l)
}
