package ledgerimport

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/import", h.CreateImport)
	r.Get("/sync/{clientID}/history", h.History)
	r.Get("/sync/{clientID}/stats", h.Stats)
	r.Post("/sync/{id}/retry", h.Retry)
}
