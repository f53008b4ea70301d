// Package schema holds the field catalog: the descriptors the analysis step
// asks for, grouped into common fields and property-type specific fields.
//
// The catalog is written in CUE. schema.cue constrains every descriptor
// (component types, select options, defaults); catalog.cue holds the data.
// Load unifies the two, requires concrete values and decodes the result into
// types.FieldDescriptor.
package schema

import (
	_ "embed"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/rotisserie/eris"

	"github.com/matthewbaird/mobi/internal/types"
)

// PropertyTypeID is the id of the field every session starts with.
const PropertyTypeID = "property_type"

//go:embed schema.cue
var schemaSource []byte

//go:embed catalog.cue
var catalogSource []byte

type catalogFile struct {
	PropertyType   types.FieldDescriptor              `json:"property_type"`
	Common         []types.FieldDescriptor            `json:"common"`
	ByPropertyType map[string][]types.FieldDescriptor `json:"by_property_type"`
}

// Catalog is an immutable, validated field catalog.
type Catalog struct {
	propertyType types.FieldDescriptor
	common       []types.FieldDescriptor
	byType       map[string][]types.FieldDescriptor
	byID         map[string]types.FieldDescriptor
}

// Load returns the built-in catalog.
func Load() (*Catalog, error) {
	return Parse(catalogSource, "catalog.cue")
}

// Parse compiles src (CUE, or JSON, which is valid CUE) against the catalog
// definitions. filename is used in error positions.
func Parse(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()

	defs := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := defs.Err(); err != nil {
		return nil, eris.Wrap(err, "compile catalog definitions")
	}
	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, eris.Wrapf(err, "compile %s", filename)
	}

	v := defs.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, eris.Wrapf(err, "validate %s", filename)
	}

	var f catalogFile
	if err := v.Decode(&f); err != nil {
		return nil, eris.Wrapf(err, "decode %s", filename)
	}
	return newCatalog(f)
}

func newCatalog(f catalogFile) (*Catalog, error) {
	c := &Catalog{
		propertyType: f.PropertyType,
		common:       f.Common,
		byType:       f.ByPropertyType,
		byID:         make(map[string]types.FieldDescriptor),
	}
	if c.byType == nil {
		c.byType = map[string][]types.FieldDescriptor{}
	}

	if err := c.index(c.propertyType, ""); err != nil {
		return nil, err
	}
	for _, d := range c.common {
		if err := c.index(d, ""); err != nil {
			return nil, err
		}
	}
	for pt := range c.byType {
		if !c.propertyType.HasOption(pt) {
			return nil, eris.Errorf("by_property_type: %q is not a property_type option", pt)
		}
	}
	for _, pt := range c.PropertyTypes() {
		seen := map[string]bool{}
		for _, d := range c.byType[pt] {
			if seen[d.ID] {
				return nil, eris.Errorf("by_property_type.%s: duplicate field %q", pt, d.ID)
			}
			seen[d.ID] = true
			if err := c.index(d, pt); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// index checks d and records it by id. Type-specific fields may reuse an id
// across property types but not one of the common ids.
func (c *Catalog) index(d types.FieldDescriptor, pt string) error {
	if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
		return eris.Errorf("field %q: min %g is greater than max %g", d.ID, *d.Min, *d.Max)
	}
	if existing, ok := c.byID[d.ID]; ok {
		if pt == "" || c.isShared(existing.ID) {
			return eris.Errorf("duplicate field %q", d.ID)
		}
		return nil
	}
	c.byID[d.ID] = d
	return nil
}

func (c *Catalog) isShared(id string) bool {
	if id == c.propertyType.ID {
		return true
	}
	for _, d := range c.common {
		if d.ID == id {
			return true
		}
	}
	return false
}

// PropertyTypeField returns the property type selector.
func (c *Catalog) PropertyTypeField() types.FieldDescriptor {
	d := c.propertyType
	d.Options = append([]types.FieldOption(nil), d.Options...)
	return d
}

// PropertyTypes returns the property type option values in catalog order.
func (c *Catalog) PropertyTypes() []string {
	out := make([]string, len(c.propertyType.Options))
	for i, o := range c.propertyType.Options {
		out[i] = o.Value
	}
	return out
}

// Fields returns the descriptors to collect for propertyType, excluding the
// property type selector itself. Type-specific fields come before common ones
// and the result is stably ordered by priority. An unknown or empty property
// type yields only the common fields.
func (c *Catalog) Fields(propertyType string) []types.FieldDescriptor {
	specific := c.byType[propertyType]
	out := make([]types.FieldDescriptor, 0, len(specific)+len(c.common))
	out = append(out, specific...)
	out = append(out, c.common...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Schema returns the property type selector followed by Fields(propertyType).
func (c *Catalog) Schema(propertyType string) []types.FieldDescriptor {
	return append([]types.FieldDescriptor{c.PropertyTypeField()}, c.Fields(propertyType)...)
}

// Field looks up a descriptor by id. For ids defined by more than one property
// type the definition of the earliest property type option wins.
func (c *Catalog) Field(id string) (types.FieldDescriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}
