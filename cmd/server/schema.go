package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/types"
)

var schemaPropertyType string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the field catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := schema.Load()
		if err != nil {
			return err
		}
		out, err := catalogDocument(catalog, schemaPropertyType)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(out)
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaPropertyType, "property-type", "", "print only the form of one property type")
}

// fieldDoc is a descriptor with its default rendered for YAML.
type fieldDoc struct {
	types.FieldDescriptor `yaml:",inline"`
	Default               any `yaml:"default,omitempty"`
}

func docs(descs []types.FieldDescriptor) []fieldDoc {
	out := make([]fieldDoc, len(descs))
	for i, d := range descs {
		out[i] = fieldDoc{FieldDescriptor: d, Default: d.Default.Interface()}
	}
	return out
}

// catalogDocument builds the YAML document: every property type's form,
// or just one when propertyType is set.
func catalogDocument(c *schema.Catalog, propertyType string) (map[string][]fieldDoc, error) {
	pts := c.PropertyTypes()
	if propertyType != "" {
		pt := c.PropertyTypeField()
		if !pt.HasOption(propertyType) {
			return nil, eris.Errorf("schema: unknown property type %q", propertyType)
		}
		pts = []string{propertyType}
	}
	out := make(map[string][]fieldDoc, len(pts))
	for _, pt := range pts {
		out[pt] = docs(c.Schema(pt))
	}
	return out, nil
}
