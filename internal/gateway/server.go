package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, for health checks and scrapers.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics)
	}

	r.Group(func(r chi.Router) {
		if g.cfg.BearerToken != "" {
			r.Use(authMiddleware(g.cfg.BearerToken, g.logger))
		}
		r.Get("/status", g.handleStatus())
	})

	return r
}
