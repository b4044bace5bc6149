package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *engine.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Editor session.
	r.Post("/open", h.Open)
	r.Delete("/open", h.Close)
	r.Put("/cursor", h.SetCursor)
	r.Post("/modified", h.Modified)
	r.Get("/document", h.Document)
	r.Get("/documents", h.ListDocuments)

	// Commands.
	r.Get("/commands", h.ListCommands)
	r.Post("/commands/{id}", h.RunCommand)

	// Settings.
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.ReplaceConfig)
	r.Post("/rules", h.AddRule)
	r.Delete("/rules/{index}", h.RemoveRule)
	r.Put("/ignore-paths", h.SetIgnorePaths)

	// Status bar.
	r.Get("/last-update", h.LastUpdate)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
