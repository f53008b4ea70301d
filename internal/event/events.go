// Package event defines the domain events emitted while a listing is edited.
// Events are published to the in-process event bus; consumers log them,
// count them and write them to the activity log.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/mobi/internal/types"
)

// Event types.
const (
	TypeFieldEdited        = "field_edited"
	TypeFieldInitialized   = "field_initialized"
	TypeSuggestionReceived = "suggestion_received"
	TypeSuggestionAccepted = "suggestion_accepted"
	TypeSessionReset       = "session_reset"
	TypeStateLoaded        = "state_loaded"
	TypeSessionRestored    = "session_restored"
	TypeAnalysisCompleted  = "analysis_completed"
	TypeSnapshotSaved      = "snapshot_saved"
	TypeListingSaved       = "listing_saved"
)

// Categories group event types for filtering.
const (
	CategoryEdit       = "edit"
	CategorySuggestion = "suggestion"
	CategoryLifecycle  = "lifecycle"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID         string
	EventType  string
	SessionID  string
	FieldID    string // empty for session-wide events
	OccurredAt time.Time
	Summary    string
	Category   string
	Payload    json.RawMessage
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

type valuePayload struct {
	Value types.Value `json:"value"`
}

func fieldEvent(eventType, category, sessionID, fieldID string, v types.Value, summary string) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		SessionID:  sessionID,
		FieldID:    fieldID,
		OccurredAt: time.Now(),
		Summary:    summary,
		Category:   category,
		Payload:    mustJSON(valuePayload{Value: v}),
	}
}

// ── Field events ─────────────────────────────────────────────────────────────

func NewFieldEdited(sessionID, fieldID string, v types.Value) DomainEvent {
	return fieldEvent(TypeFieldEdited, CategoryEdit, sessionID, fieldID, v,
		fmt.Sprintf("User set %s to %s", fieldID, v))
}

func NewFieldInitialized(sessionID, fieldID string, v types.Value) DomainEvent {
	return fieldEvent(TypeFieldInitialized, CategoryEdit, sessionID, fieldID, v,
		fmt.Sprintf("Field %s initialized with %s", fieldID, v))
}

func NewSuggestionReceived(sessionID, fieldID string, v types.Value) DomainEvent {
	return fieldEvent(TypeSuggestionReceived, CategorySuggestion, sessionID, fieldID, v,
		fmt.Sprintf("AI suggested %s for %s", v, fieldID))
}

func NewSuggestionAccepted(sessionID, fieldID string, v types.Value) DomainEvent {
	return fieldEvent(TypeSuggestionAccepted, CategorySuggestion, sessionID, fieldID, v,
		fmt.Sprintf("User accepted suggestion %s for %s", v, fieldID))
}

// ── Session events ───────────────────────────────────────────────────────────

func sessionEvent(eventType, sessionID, summary string, payload any) DomainEvent {
	evt := DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		SessionID:  sessionID,
		OccurredAt: time.Now(),
		Summary:    summary,
		Category:   CategoryLifecycle,
	}
	if payload != nil {
		evt.Payload = mustJSON(payload)
	}
	return evt
}

func NewSessionReset(sessionID string) DomainEvent {
	return sessionEvent(TypeSessionReset, sessionID, "Form reset", nil)
}

// StateLoadedPayload carries the size of a loaded state.
type StateLoadedPayload struct {
	Fields int `json:"fields"`
}

func NewStateLoaded(sessionID string, fields int) DomainEvent {
	return sessionEvent(TypeStateLoaded, sessionID,
		fmt.Sprintf("State loaded with %d fields", fields), StateLoadedPayload{Fields: fields})
}

// SessionRestoredPayload names the snapshot a session was restored from.
type SessionRestoredPayload struct {
	RestoredFrom string `json:"restored_from"`
	Fields       int    `json:"fields"`
}

func NewSessionRestored(sessionID, from string, fields int) DomainEvent {
	return sessionEvent(TypeSessionRestored, sessionID,
		fmt.Sprintf("Session restored from snapshot %s", from),
		SessionRestoredPayload{RestoredFrom: from, Fields: fields})
}

// AnalysisCompletedPayload summarises an applied manifest.
type AnalysisCompletedPayload struct {
	InputType            string   `json:"input_type"`
	Extracted            []string `json:"extracted"`
	NextFields           []string `json:"next_fields"`
	CompletionPercentage *float64 `json:"completion_percentage,omitempty"`
}

func NewAnalysisCompleted(sessionID string, p AnalysisCompletedPayload) DomainEvent {
	return sessionEvent(TypeAnalysisCompleted, sessionID,
		fmt.Sprintf("Analysis of %s input extracted %d fields", p.InputType, len(p.Extracted)), p)
}

func NewSnapshotSaved(sessionID string, fields int) DomainEvent {
	return sessionEvent(TypeSnapshotSaved, sessionID,
		fmt.Sprintf("Snapshot saved with %d fields", fields), StateLoadedPayload{Fields: fields})
}

// ListingSavedPayload identifies a saved listing.
type ListingSavedPayload struct {
	ListingID string `json:"listing_id"`
	Status    string `json:"status"`
}

func NewListingSaved(sessionID, listingID, status string) DomainEvent {
	return sessionEvent(TypeListingSaved, sessionID,
		fmt.Sprintf("Listing %s saved as %s", listingID, status),
		ListingSavedPayload{ListingID: listingID, Status: status})
}
