package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Ops endpoints, outside compression: promhttp negotiates its own
	// encoding.
	r.Get("/healthz", h.Healthz)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.Compress)
		// Generous deadline: page reads may scrape on miss, which can
		// take several upstream attempts.
		r.Use(m.Timeout(2 * time.Minute))

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", h.ListPages)
			r.Route("/{pageKey}", func(r chi.Router) {
				r.Get("/", h.GetPage)
				r.Get("/posts", h.ListPosts)
				r.Get("/followers", h.ListFollowers)
				r.Get("/summary", h.GetSummary)
				r.Get("/runs", h.ListRuns)
			})
		})

		r.Post("/scrape/{pageKey}", h.ScrapePage)
	})

	return r
}
