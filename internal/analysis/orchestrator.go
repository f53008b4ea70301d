package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/types"
)

// DefaultFieldsPerStep is how many fields the orchestrator asks for at once.
const DefaultFieldsPerStep = 3

// Orchestrator decides which catalog fields to ask for next from the values
// filled so far. It does not look at images; text input is taken as the
// listing description.
type Orchestrator struct {
	catalog       *schema.Catalog
	fieldsPerStep int
}

var _ Analyzer = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator over catalog.
func NewOrchestrator(catalog *schema.Catalog) *Orchestrator {
	return &Orchestrator{catalog: catalog, fieldsPerStep: DefaultFieldsPerStep}
}

// Analyze builds the next manifest. The property type is always asked for
// first; after that the highest priority unfilled fields follow.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*types.Manifest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extracted := map[string]types.Value{}
	if req.InputType == InputText {
		if text := strings.TrimSpace(req.NewInput); text != "" {
			extracted["description"] = types.String(text)
		}
	}

	data := make(map[string]types.Value, len(req.CurrentData)+len(extracted))
	for k, v := range req.CurrentData {
		data[k] = v
	}
	for k, v := range extracted {
		data[k] = v
	}

	next := o.NextFields(data)
	filled := filledCount(data)
	completion := o.Completion(data)
	return &types.Manifest{
		ExtractedData:        extracted,
		UISchema:             next,
		AIMessage:            message(data, filled),
		StepNumber:           &filled,
		CompletionPercentage: &completion,
	}, nil
}

// NextFields returns up to fieldsPerStep unfilled descriptors.
func (o *Orchestrator) NextFields(data map[string]types.Value) []types.FieldDescriptor {
	pt, ok := propertyType(data)
	if !ok {
		return []types.FieldDescriptor{o.catalog.PropertyTypeField()}
	}
	out := make([]types.FieldDescriptor, 0, o.fieldsPerStep)
	for _, d := range o.catalog.Fields(pt) {
		if isFilled(data, d.ID) {
			continue
		}
		out = append(out, d)
		if len(out) == o.fieldsPerStep {
			break
		}
	}
	return out
}

// Completion is the share of the property type's fields that are filled, in
// percent, capped at 100.
func (o *Orchestrator) Completion(data map[string]types.Value) float64 {
	pt, _ := propertyType(data)
	total := len(o.catalog.Fields(pt))
	if total == 0 {
		return 0
	}
	return math.Min(100, float64(filledCount(data))/float64(total)*100)
}

func propertyType(data map[string]types.Value) (string, bool) {
	s, ok := data[schema.PropertyTypeID].Str()
	return s, ok && s != ""
}

// isFilled reports whether id holds a non-null value.
func isFilled(data map[string]types.Value, id string) bool {
	v, ok := data[id]
	return ok && !v.IsNull()
}

func filledCount(data map[string]types.Value) int {
	n := 0
	for _, v := range data {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

func message(data map[string]types.Value, filled int) string {
	pt, ok := propertyType(data)
	switch {
	case !ok:
		return "Let's start by identifying what type of property you are listing."
	case filled < 3:
		return fmt.Sprintf("Great, this is a %s. Let's continue with the essential details.", describe(pt))
	case filled < 5:
		return "Good progress! A few more key details for your listing."
	case filled < 7:
		return "Almost done! Just the final details left."
	default:
		return "All the required information is in. Ready to preview and save your listing?"
	}
}

func describe(pt string) string {
	if pt == "commercial" {
		return "commercial property"
	}
	return pt
}
