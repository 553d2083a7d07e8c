package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/ledgerimport"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	ImportHandler *ledgerimport.Handler
	JobHandler    *jobs.Handler
}

// NewRouter constructs the chi.Router with Ledgerfy defaults.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if p.ImportHandler != nil {
		r.Route("/ledger", p.ImportHandler.MountRoutes)
	}
	if p.JobHandler != nil {
		r.Route("/jobs", p.JobHandler.MountRoutes)
	}
	return r
}
