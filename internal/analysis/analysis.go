// Package analysis produces UI manifests: given the current listing values and
// a new input (an image, a text snippet or a plain field update) an Analyzer
// reports what it extracted, which fields to ask for next and a short guidance
// message.
//
// Client talks to the external analysis service. Orchestrator is the local,
// catalog-driven fallback used when no service is configured.
package analysis

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

// InputType says what Request.NewInput carries.
type InputType string

const (
	InputImage       InputType = "image"
	InputText        InputType = "text"
	InputFieldUpdate InputType = "field_update"
)

// Valid reports whether t is a known input type.
func (t InputType) Valid() bool {
	switch t {
	case InputImage, InputText, InputFieldUpdate:
		return true
	}
	return false
}

// ErrInvalidRequest is returned for requests that fail Validate.
var ErrInvalidRequest = eris.New("invalid analysis request")

// Request is one analysis step.
type Request struct {
	CurrentData map[string]types.Value `json:"current_data"`
	NewInput    string                 `json:"new_input,omitempty"`
	InputType   InputType              `json:"input_type"`
	ImageURL    string                 `json:"image_url,omitempty"`
}

// Validate checks the input type and that image and text steps carry input.
func (r Request) Validate() error {
	if !r.InputType.Valid() {
		return eris.Wrap(ErrInvalidRequest, "input_type must be image, text or field_update")
	}
	switch r.InputType {
	case InputText:
		if r.NewInput == "" {
			return eris.Wrap(ErrInvalidRequest, "text input requires new_input")
		}
	case InputImage:
		if r.NewInput == "" && r.ImageURL == "" {
			return eris.Wrap(ErrInvalidRequest, "image input requires new_input or image_url")
		}
	}
	return nil
}

// Analyzer runs one analysis step.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*types.Manifest, error)
}
