package handler

import (
	"net/http"

	"github.com/matthewbaird/mobi/internal/storage"
	"github.com/matthewbaird/mobi/internal/types"
)

// ListingHandler serves saved listings.
type ListingHandler struct {
	store storage.Store
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(store storage.Store) *ListingHandler {
	return &ListingHandler{store: store}
}

// ListListings returns saved listings, newest first.
// GET /v1/listings?status=&limit=
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Status: types.ListingStatus(r.URL.Query().Get("status")),
		Limit:  parseLimit(r, 50, 500),
	}
	if opts.Status != "" && !opts.Status.Valid() {
		writeError(w, http.StatusBadRequest, CodeInvalidValue, "unknown status: "+string(opts.Status))
		return
	}
	listings, err := h.store.ListListings(r.Context(), opts)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Listings []types.Listing `json:"listings"`
	}{listings})
}

// GetListing returns one saved listing.
// GET /v1/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.store.GetListing(r.Context(), id)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
