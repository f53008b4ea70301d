package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/types"
)

func loadCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	require.NoError(t, err)
	return c
}

func ids(descs []types.FieldDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}

func TestLoad_BuiltinCatalog(t *testing.T) {
	c := loadCatalog(t)

	pt := c.PropertyTypeField()
	assert.Equal(t, PropertyTypeID, pt.ID)
	assert.Equal(t, "select", pt.Type)
	assert.True(t, pt.Required)
	assert.Equal(t, []string{"house", "apartment", "condo", "townhouse", "land", "commercial"}, c.PropertyTypes())
}

func TestLoad_EveryTypeIsRegistered(t *testing.T) {
	c := loadCatalog(t)
	for _, pt := range append(c.PropertyTypes(), "") {
		for _, d := range c.Schema(pt) {
			assert.True(t, fields.Has(d.Type), "%s: %q", d.ID, d.Type)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	c := loadCatalog(t)

	bedrooms, ok := c.Field("bedrooms")
	require.True(t, ok)
	assert.True(t, bedrooms.Default.Equal(types.Number(2)))
	assert.True(t, bedrooms.Required)
	require.NotNil(t, bedrooms.Min)
	require.NotNil(t, bedrooms.Max)
	assert.Equal(t, 0.0, *bedrooms.Min)
	assert.Equal(t, 20.0, *bedrooms.Max)

	desc, ok := c.Field("description")
	require.True(t, ok)
	assert.True(t, desc.Default.IsNull())
	assert.False(t, desc.Required)

	// Type-specific fields without an explicit priority sort after the common ones.
	lot, ok := c.Field("lot_size")
	require.True(t, ok)
	assert.Equal(t, 10, lot.Priority)
}

func TestCatalog_Fields(t *testing.T) {
	c := loadCatalog(t)

	common := []string{"bedrooms", "bathrooms", "square_feet", "price", "address", "description", "has_parking", "has_pool"}
	assert.Equal(t, common, ids(c.Fields("")))
	assert.Equal(t, common, ids(c.Fields("land")))
	assert.Equal(t, common, ids(c.Fields("castle")))

	house := ids(c.Fields("house"))
	assert.Equal(t, append(append([]string{}, common...), "lot_size", "roof_age", "garage", "stories"), house)

	schema := ids(c.Schema("apartment"))
	assert.Equal(t, PropertyTypeID, schema[0])
	assert.Contains(t, schema, "floor_number")
	assert.NotContains(t, schema, "lot_size")
}

func TestCatalog_FieldUnknown(t *testing.T) {
	c := loadCatalog(t)
	_, ok := c.Field("moat_depth")
	assert.False(t, ok)
}

func TestCatalog_PropertyTypeFieldIsCopy(t *testing.T) {
	c := loadCatalog(t)
	pt := c.PropertyTypeField()
	pt.Options[0].Value = "castle"
	assert.Equal(t, "house", c.PropertyTypes()[0])
}

const minimal = `
property_type: {
	id:             "property_type"
	component_type: "select"
	label:          "Type"
	options: [{value: "house", label: "House"}]
}
common: [{id: "price", component_type: "number", label: "Price"}]
`

func TestParse_Minimal(t *testing.T) {
	c, err := Parse([]byte(minimal), "minimal.cue")
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, ids(c.Fields("house")))

	price, _ := c.Field("price")
	assert.False(t, price.Required)
	assert.Equal(t, 10, price.Priority)
}

func TestParse_JSON(t *testing.T) {
	src := `{
		"property_type": {"id": "property_type", "component_type": "select", "label": "Type",
			"options": [{"value": "land", "label": "Land"}]},
		"common": [{"id": "has_well", "component_type": "toggle", "label": "Well", "default": false}]
	}`
	c, err := Parse([]byte(src), "catalog.json")
	require.NoError(t, err)
	well, ok := c.Field("has_well")
	require.True(t, ok)
	assert.True(t, well.Default.Equal(types.Bool(false)))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown component type", minimal + `
by_property_type: house: [{id: "listed", component_type: "date", label: "Listed"}]`},
		{"select without options", minimal + `
by_property_type: house: [{id: "garage", component_type: "select", label: "Garage"}]`},
		{"min above max", minimal + `
by_property_type: house: [{id: "floors", component_type: "number", label: "Floors", min: 5, max: 1}]`},
		{"unknown property type", minimal + `
by_property_type: castle: [{id: "moat", component_type: "toggle", label: "Moat"}]`},
		{"duplicate common id", minimal + `
by_property_type: house: [{id: "price", component_type: "number", label: "Price again"}]`},
		{"unknown attribute", minimal + `
by_property_type: house: [{id: "pool", component_type: "toggle", label: "Pool", colour: "blue"}]`},
		{"composite default", minimal + `
by_property_type: house: [{id: "tags", component_type: "text", label: "Tags", default: ["a"]}]`},
		{"missing label", minimal + `
by_property_type: house: [{id: "pool", component_type: "toggle"}]`},
		{"syntax error", `property_type: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			assert.Error(t, err)
		})
	}
}
