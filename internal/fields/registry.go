// Package fields provides the field component registry: a fixed, exact-match
// table from a schema type tag ("text", "select", "number", "toggle") to the
// renderer that builds the widget for that field and validates values
// submitted through it.
//
// The table is closed. Supporting a new field type means adding a Renderer
// and an entry to renderers below; there is no runtime registration.
package fields

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

// ErrInvalidValue is returned by Renderer.Parse for values the widget could
// not have produced.
var ErrInvalidValue = eris.New("invalid field value")

// Renderer is responsible for one field type.
type Renderer interface {
	// Type is the registry tag.
	Type() string
	// Widget builds the view model for desc showing rec.
	Widget(desc types.FieldDescriptor, rec types.FieldRecord) Widget
	// Parse validates a raw submitted value against desc.
	Parse(desc types.FieldDescriptor, raw json.RawMessage) (types.Value, error)
}

// renderers is the registry, in declaration order.
var renderers = []Renderer{
	TextInput{},
	SelectInput{},
	NumberInput{},
	ToggleInput{},
}

// byType is the lookup map built from renderers.
var byType = func() map[string]Renderer {
	m := make(map[string]Renderer, len(renderers))
	for _, r := range renderers {
		m[r.Type()] = r
	}
	return m
}()

// Get returns the renderer registered for tag. Matching is exact and
// case-sensitive; unknown tags report false.
func Get(tag string) (Renderer, bool) {
	r, ok := byType[tag]
	return r, ok
}

// Has reports whether tag is registered.
func Has(tag string) bool {
	_, ok := byType[tag]
	return ok
}

// Types returns the registered tags in declaration order.
func Types() []string {
	out := make([]string, len(renderers))
	for i, r := range renderers {
		out[i] = r.Type()
	}
	return out
}
