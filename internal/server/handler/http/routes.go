package http

import (
	"net/http"

	"github.com/atinyakov/GophOTP/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler that serves the GophOTP API.
//
// Routes:
//
//	GET    /healthz               → Health (no client certificate needed)
//	GET    /api/keys              → keys.List
//	POST   /api/keys              → keys.Create
//	DELETE /api/keys/{ref}        → keys.Delete
//	GET    /api/keys/{ref}/code   → keys.Code
//	GET    /api/keys/{ref}/qr     → keys.QR
//	POST   /api/keys/{ref}/verify → keys.Verify
//	POST   /api/devices           → devices.Enroll (only when devices is non-nil)
//
// {ref} is an entry index or an entry id.
//
// Middleware chain (applied in order):
//  1. RequestID and Recoverer
//  2. WithRequestLogging(logger), so rejected requests are logged too
//  3. CertAuth, which enforces TLS client certificate auth
//  4. AllowContentType("application/json") on requests with a body
func NewRouter(keys *KeysHandler, devices *DevicesHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.CertAuth)
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Get(middleware.HealthPath, Health)

	r.Route("/api/keys", func(r chi.Router) {
		r.Get("/", keys.List)
		r.Post("/", keys.Create)
		r.Route("/{ref}", func(r chi.Router) {
			r.Delete("/", keys.Delete)
			r.Get("/code", keys.Code)
			r.Get("/qr", keys.QR)
			r.Post("/verify", keys.Verify)
		})
	})

	if devices != nil {
		r.Post("/api/devices", devices.Enroll)
	}

	return r
}
