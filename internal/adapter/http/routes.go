package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/middleware"
)

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(h *Handlers, corsOrigin, serviceName string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(SecurityHeaders)
	r.Use(CORS(corsOrigin))
	r.Use(otel.HTTPMiddleware(serviceName))

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		// chi requires one wildcard name per segment position, so {id} is
		// the customer ID for generate/history and the recommendation ID
		// for the outcome routes.
		r.Route("/recommendations", func(r chi.Router) {
			r.Post("/{id}", h.generateRecommendations)
			r.Get("/{id}/history", h.recommendationHistory)
			r.Put("/{id}/outcome", h.updateOutcome)
			r.Post("/{id}/acceptance", h.trackAcceptance)
			r.Get("/{id}/explainability", h.explainability)
		})
		r.Route("/customers", func(r chi.Router) {
			r.Get("/search", h.searchCustomers)
			r.Get("/{customerID}/profile", h.customerProfile)
		})
	})

	return r
}
