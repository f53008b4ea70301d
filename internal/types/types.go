// Package types holds the shared data model of a listing-creation session:
// field values and their provenance, the inbound field schema contract, the
// analysis manifest and the saved listing.
package types

import (
	"encoding/json"
	"time"
)

// Origin is the provenance of a field's current value.
type Origin string

const (
	OriginUser    Origin = "user"
	OriginAI      Origin = "ai"
	OriginDefault Origin = "default"
)

// FieldRecord is the per-field state held by the listing store.
type FieldRecord struct {
	Value        Value
	Origin       Origin
	UserModified bool
	// PendingSuggestion is the latest AI value, kept after a user edit so the
	// UI can offer to accept it. Nil means no suggestion was ever received.
	PendingSuggestion *Value
}

type fieldRecordJSON struct {
	Value             Value           `json:"value"`
	Origin            Origin          `json:"origin"`
	UserModified      bool            `json:"userModified"`
	PendingSuggestion json.RawMessage `json:"pendingSuggestion,omitempty"`
}

// MarshalJSON keeps a null suggestion distinct from an absent one.
func (r FieldRecord) MarshalJSON() ([]byte, error) {
	aux := fieldRecordJSON{
		Value:        r.Value,
		Origin:       r.Origin,
		UserModified: r.UserModified,
	}
	if r.PendingSuggestion != nil {
		raw, err := r.PendingSuggestion.MarshalJSON()
		if err != nil {
			return nil, err
		}
		aux.PendingSuggestion = raw
	}
	return json.Marshal(aux)
}

// UnmarshalJSON decodes a snapshot record as-is; no origin or flag
// consistency is checked.
func (r *FieldRecord) UnmarshalJSON(data []byte) error {
	var aux fieldRecordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = FieldRecord{
		Value:        aux.Value,
		Origin:       aux.Origin,
		UserModified: aux.UserModified,
	}
	if len(aux.PendingSuggestion) > 0 {
		var p Value
		if err := p.UnmarshalJSON(aux.PendingSuggestion); err != nil {
			return err
		}
		r.PendingSuggestion = &p
	}
	return nil
}

// Clone returns a copy that shares no memory with r.
func (r FieldRecord) Clone() FieldRecord {
	if r.PendingSuggestion != nil {
		p := *r.PendingSuggestion
		r.PendingSuggestion = &p
	}
	return r
}

// ListingState maps field id to its record. It is the persisted session
// snapshot shape.
type ListingState map[string]FieldRecord

// Clone deep-copies s. A nil state clones to an empty, non-nil state.
func (s ListingState) Clone() ListingState {
	out := make(ListingState, len(s))
	for id, rec := range s {
		out[id] = rec.Clone()
	}
	return out
}

// FieldOption is one choice of a select field.
type FieldOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// FieldDescriptor describes one form field as declared by the schema source.
// Type is matched against the field component registry.
type FieldDescriptor struct {
	ID          string        `json:"id" yaml:"id"`
	Type        string        `json:"component_type" yaml:"component_type"`
	Label       string        `json:"label" yaml:"label"`
	Placeholder string        `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options     []FieldOption `json:"options,omitempty" yaml:"options,omitempty"`
	Min         *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Step        *float64      `json:"step,omitempty" yaml:"step,omitempty"`
	Required    bool          `json:"required" yaml:"required"`
	Default     Value         `json:"default" yaml:"-"`
	Priority    int           `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// HasOption reports whether value is one of the descriptor's options.
func (d FieldDescriptor) HasOption(value string) bool {
	for _, o := range d.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Manifest is the analysis service response: extracted values, the fields to
// show next and a guidance message.
type Manifest struct {
	ExtractedData        map[string]Value   `json:"extracted_data"`
	UISchema             []FieldDescriptor  `json:"ui_schema"`
	AIMessage            string             `json:"ai_message,omitempty"`
	ConfidenceScores     map[string]float64 `json:"confidence_scores,omitempty"`
	StepNumber           *int               `json:"step_number,omitempty"`
	CompletionPercentage *float64           `json:"completion_percentage,omitempty"`
}

// ListingStatus is the lifecycle state of a saved listing.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "draft"
	ListingPublished ListingStatus = "published"
	ListingArchived  ListingStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingDraft, ListingPublished, ListingArchived:
		return true
	}
	return false
}

// Listing is a saved property listing: the flat field payload plus metadata.
type Listing struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id,omitempty"`
	Status       ListingStatus    `json:"status"`
	PropertyType string           `json:"property_type,omitempty"`
	Fields       map[string]Value `json:"fields"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
