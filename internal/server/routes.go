package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iotfleet/usergate/internal/api"
)

// Rate limit for the command endpoint. Directory writes are expensive
// upstream; the cap is generous for management consoles and scripts.
const (
	commandRequestsPerMinute = 60
	commandBurst             = 10
)

// setupRoutes creates the chi router.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Global middleware stack (order matters for correct logging).
	// RequestID must come first so GetReqID works in the request logger.
	// accessLog wraps the response writer, Recoverer writes through the
	// wrapper, so the access log captures correct status for panics.
	r.Use(middleware.RequestID)
	r.Use(s.requestLoggerMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Health endpoint (public)
		r.Get("/healthz", api.HealthHandler)

		// Arithmetic check endpoint (public)
		r.Get("/sum", api.SumHandler)
		r.Post("/sum", api.SumHandler)

		// Command endpoint (rate-limited, key-authed). The handler owns
		// method rejection so non-POST callers get an envelope, not a 404.
		r.With(
			s.rateLimitMiddleware(commandRequestsPerMinute, commandBurst),
			s.keyAuthMiddleware,
		).Handle("/usermgmt", s.cmdHandler)
	})

	return r
}
