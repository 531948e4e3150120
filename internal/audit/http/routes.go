package audithttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the audit timeline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.handleTimeline)
	})
}
