package fields

import (
	"github.com/matthewbaird/mobi/internal/types"
)

// RecordReader is the read side of the listing store the form needs.
type RecordReader interface {
	Record(id string) (types.FieldRecord, bool)
}

// Form is an ordered set of widgets plus the descriptors that could not be
// rendered because their type tag is not registered.
type Form struct {
	Widgets []Widget                `json:"widgets"`
	Skipped []types.FieldDescriptor `json:"skipped,omitempty"`
}

// Render builds widgets for descs in order, reading current values from rec.
// Descriptors with an unregistered type are skipped, not rejected.
func Render(descs []types.FieldDescriptor, rec RecordReader) Form {
	form := Form{Widgets: make([]Widget, 0, len(descs))}
	for _, d := range descs {
		r, ok := Get(d.Type)
		if !ok {
			form.Skipped = append(form.Skipped, d)
			continue
		}
		record, _ := rec.Record(d.ID)
		form.Widgets = append(form.Widgets, r.Widget(d, record))
	}
	return form
}

// ParseFor validates raw against the renderer for desc.Type. Descriptors
// with an unregistered type accept any primitive.
func ParseFor(desc types.FieldDescriptor, raw []byte) (types.Value, error) {
	if r, ok := Get(desc.Type); ok {
		return r.Parse(desc, raw)
	}
	return decodeRaw(raw)
}
