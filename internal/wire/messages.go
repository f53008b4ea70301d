// Package wire defines the WebSocket protocol for live listing state.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/mobi/internal/listing"
	"github.com/matthewbaird/mobi/internal/types"
)

// Client message types.
const (
	TypeSetField  = "set_field"
	TypeInitField = "init_field"
	TypeAccept    = "accept"
	TypePing      = "ping"
)

// Server message types.
const (
	TypeState = "state"
	TypeAck   = "ack"
	TypePong  = "pong"
	TypeError = "error"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "set_field", "init_field", "accept", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// FieldValueData is the payload for "set_field" and "init_field" messages.
type FieldValueData struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// FieldData is the payload for "accept" messages.
type FieldData struct {
	ID string `json:"id"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "state", "ack", "pong", "error"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// StateData is a complete snapshot of the session's store.
type StateData struct {
	Version uint64                 `json:"version"`
	Values  map[string]types.Value `json:"values"`
	Pending map[string]types.Value `json:"pending"`
	Records types.ListingState     `json:"records"`
}

// NewStateData projects a store snapshot. The snapshot's state is shared
// and only read.
func NewStateData(snap listing.Snapshot) StateData {
	return StateData{
		Version: snap.Version,
		Values:  listing.ValuesOf(snap.State),
		Pending: listing.PendingOf(snap.State),
		Records: snap.State,
	}
}

// AckData confirms a mutation and the store version it produced. For a
// no-op init it is the version the request observed.
type AckData struct {
	Version uint64 `json:"version"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
