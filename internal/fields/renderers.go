package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

const (
	defaultSelectPlaceholder = "Select an option"
	defaultNumberStep        = 1.0
)

// Widget is the renderer-facing view model of one form field.
type Widget struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Input       string              `json:"input"` // "text", "select", "number", "checkbox"
	Label       string              `json:"label"`
	Placeholder string              `json:"placeholder,omitempty"`
	Options     []types.FieldOption `json:"options,omitempty"`
	Min         *float64            `json:"min,omitempty"`
	Max         *float64            `json:"max,omitempty"`
	Step        *float64            `json:"step,omitempty"`
	Required    bool                `json:"required"`
	Value       types.Value         `json:"value"`
	Origin      types.Origin        `json:"origin,omitempty"`
	Suggestion  *types.Value        `json:"suggestion,omitempty"`
}

func baseWidget(tag, input string, desc types.FieldDescriptor, rec types.FieldRecord) Widget {
	w := Widget{
		ID:          desc.ID,
		Type:        tag,
		Input:       input,
		Label:       desc.Label,
		Placeholder: desc.Placeholder,
		Required:    desc.Required,
		Value:       rec.Value,
		Origin:      rec.Origin,
	}
	if p := rec.PendingSuggestion; p != nil && !p.Equal(rec.Value) {
		s := *p
		w.Suggestion = &s
	}
	return w
}

// decodeRaw decodes one JSON primitive. Empty input is treated as null.
func decodeRaw(raw json.RawMessage) (types.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return types.Null(), nil
	}
	var v types.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return types.Value{}, eris.Wrap(ErrInvalidValue, err.Error())
	}
	return v, nil
}

func invalid(desc types.FieldDescriptor, format string, args ...any) error {
	return eris.Wrapf(ErrInvalidValue, "%s: %s", desc.ID, fmt.Sprintf(format, args...))
}

// TextInput renders free text.
type TextInput struct{}

func (TextInput) Type() string { return "text" }

func (TextInput) Widget(desc types.FieldDescriptor, rec types.FieldRecord) Widget {
	return baseWidget("text", "text", desc, rec)
}

func (TextInput) Parse(desc types.FieldDescriptor, raw json.RawMessage) (types.Value, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return v, err
	}
	switch v.Kind() {
	case types.KindNull, types.KindString:
		return v, nil
	default:
		return types.Value{}, invalid(desc, "expected text, got %s", v.Kind())
	}
}

// SelectInput renders a single choice from desc.Options.
type SelectInput struct{}

func (SelectInput) Type() string { return "select" }

func (SelectInput) Widget(desc types.FieldDescriptor, rec types.FieldRecord) Widget {
	w := baseWidget("select", "select", desc, rec)
	w.Options = desc.Options
	if w.Placeholder == "" {
		w.Placeholder = defaultSelectPlaceholder
	}
	return w
}

// Parse accepts one of the option values. The empty string clears the field.
func (SelectInput) Parse(desc types.FieldDescriptor, raw json.RawMessage) (types.Value, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return v, err
	}
	switch v.Kind() {
	case types.KindNull:
		return v, nil
	case types.KindString:
		s, _ := v.Str()
		if s == "" {
			return types.Null(), nil
		}
		if !desc.HasOption(s) {
			return types.Value{}, invalid(desc, "%q is not an option", s)
		}
		return v, nil
	default:
		return types.Value{}, invalid(desc, "expected option value, got %s", v.Kind())
	}
}

// NumberInput renders a numeric input bounded by desc.Min/desc.Max.
type NumberInput struct{}

func (NumberInput) Type() string { return "number" }

func (NumberInput) Widget(desc types.FieldDescriptor, rec types.FieldRecord) Widget {
	w := baseWidget("number", "number", desc, rec)
	w.Min, w.Max = desc.Min, desc.Max
	step := defaultNumberStep
	if desc.Step != nil {
		step = *desc.Step
	}
	w.Step = &step
	return w
}

// Parse accepts JSON numbers and numeric strings as typed into the input.
// A blank string clears the field. Step is a UI hint and is not enforced.
func (NumberInput) Parse(desc types.FieldDescriptor, raw json.RawMessage) (types.Value, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return v, err
	}
	var n float64
	switch v.Kind() {
	case types.KindNull:
		return v, nil
	case types.KindNumber:
		n, _ = v.Num()
	case types.KindString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return types.Null(), nil
		}
		n, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Value{}, invalid(desc, "%q is not a number", s)
		}
	default:
		return types.Value{}, invalid(desc, "expected number, got %s", v.Kind())
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return types.Value{}, invalid(desc, "%g is not a finite number", n)
	}
	if desc.Min != nil && n < *desc.Min {
		return types.Value{}, invalid(desc, "%g is below minimum %g", n, *desc.Min)
	}
	if desc.Max != nil && n > *desc.Max {
		return types.Value{}, invalid(desc, "%g is above maximum %g", n, *desc.Max)
	}
	return types.Number(n), nil
}

// ToggleInput renders a checkbox.
type ToggleInput struct{}

func (ToggleInput) Type() string { return "toggle" }

func (ToggleInput) Widget(desc types.FieldDescriptor, rec types.FieldRecord) Widget {
	return baseWidget("toggle", "checkbox", desc, rec)
}

func (ToggleInput) Parse(desc types.FieldDescriptor, raw json.RawMessage) (types.Value, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return v, err
	}
	switch v.Kind() {
	case types.KindNull, types.KindBool:
		return v, nil
	default:
		return types.Value{}, invalid(desc, "expected true or false, got %s", v.Kind())
	}
}
