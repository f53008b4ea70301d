package handler

import (
	"net/http"

	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/types"
)

// CatalogHandler exposes the field registry and the field catalog.
type CatalogHandler struct {
	catalog *schema.Catalog
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog *schema.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListFieldTypes returns the registered field type tags in declaration order.
// GET /v1/field-types
func (h *CatalogHandler) ListFieldTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Types []string `json:"types"`
	}{fields.Types()})
}

// GetCatalog returns the property type field and, when property_type is
// given, the fields of that property type.
// GET /v1/catalog?property_type=
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		PropertyTypes []string                `json:"property_types"`
		PropertyType  string                  `json:"property_type,omitempty"`
		Fields        []types.FieldDescriptor `json:"fields"`
	}{
		PropertyTypes: h.catalog.PropertyTypes(),
	}

	pt := r.URL.Query().Get("property_type")
	if pt == "" {
		resp.Fields = []types.FieldDescriptor{h.catalog.PropertyTypeField()}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ptField := h.catalog.PropertyTypeField()
	if !ptField.HasOption(pt) {
		writeError(w, http.StatusBadRequest, CodeInvalidValue, "unknown property type: "+pt)
		return
	}
	resp.PropertyType = pt
	resp.Fields = h.catalog.Schema(pt)
	writeJSON(w, http.StatusOK, resp)
}
