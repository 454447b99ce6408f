package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consultahub/consulta-server/pkg/logger"
)

// Router assembles the chi mux for the engine.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(logger.Middleware)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/authorize", s.handleAuthorize)
		r.Get("/quota/{userID}", s.handleQuotaStatus)

		// The admin surface assumes an upstream auth layer already
		// verified the actor; X-Actor-ID carries the verified identity.
		r.Route("/admin", func(r chi.Router) {
			r.Put("/roles", s.handleSetRole)
			r.Post("/moderation", s.handleApplyModeration)
			r.Delete("/moderation/{actionID}", s.handleDeactivateModeration)
			r.Get("/moderation", s.handleModerationLog)
			r.Get("/moderation/users/{userID}", s.handleActiveModeration)
			r.Post("/quota/sweep", s.handleSweep)
		})
	})

	return r
}
