package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/mobi/internal/activity"
	"github.com/matthewbaird/mobi/internal/analysis"
	"github.com/matthewbaird/mobi/internal/metrics"
	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/session"
	"github.com/matthewbaird/mobi/internal/storage"
)

// Deps are the services the REST handlers need.
type Deps struct {
	Sessions *session.Manager
	Analyzer analysis.Analyzer
	Store    storage.Store
	Activity activity.Store
	Catalog  *schema.Catalog
	Metrics  *metrics.Metrics
	// LiveState serves GET /v1/sessions/{id}/ws. Optional.
	LiveState http.Handler
}

// RegisterRoutes registers the v1 API on r.
func RegisterRoutes(r chi.Router, d Deps) {
	sh := NewSessionHandler(d.Sessions, d.Analyzer, d.Store, d.Metrics)
	lh := NewListingHandler(d.Store)
	ch := NewCatalogHandler(d.Catalog)
	ah := NewActivityHandler(d.Activity)

	r.Route("/v1", func(r chi.Router) {
		// --- Registry and catalog ---
		r.Get("/field-types", ch.ListFieldTypes)
		r.Get("/catalog", ch.GetCatalog)

		// --- Sessions ---
		r.Post("/sessions", sh.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", sh.GetSession)
			r.Delete("/", sh.DeleteSession)
			r.Get("/form", sh.GetForm)
			r.Put("/fields/{field}", sh.SetField)
			r.Post("/fields/{field}/init", sh.InitField)
			r.Post("/fields/{field}/accept", sh.AcceptSuggestion)
			r.Post("/suggestions", sh.AddSuggestions)
			r.Post("/analyze", sh.Analyze)
			r.Post("/reset", sh.Reset)
			r.Put("/state", sh.LoadState)
			r.Post("/snapshot", sh.SaveSnapshot)
			r.Post("/listing", sh.SaveListing)
			r.Get("/activity", ah.GetSessionActivity)
			if d.LiveState != nil {
				r.Get("/ws", d.LiveState.ServeHTTP)
			}
		})

		// --- Listings ---
		r.Get("/listings", lh.ListListings)
		r.Get("/listings/{id}", lh.GetListing)

		// --- Activity ---
		r.Get("/activity/search", ah.SearchActivity)
	})
}
