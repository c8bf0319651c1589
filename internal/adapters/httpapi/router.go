package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the demo API router.
//
// Only the mutating order endpoint opts into idempotency; reads pass through
// untouched. The filter must run inside the chi routing context so it can
// read the matched route template.
func NewRouter(srv *Server, filter *Filter) http.Handler {
	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoint used for infra checks.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(filter.Handler).Post("/", srv.CreateOrder)
		r.Get("/{orderID}", srv.GetOrder)
	})

	return r
}
