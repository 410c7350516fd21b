// Package middleware provides HTTP middlewares for client-certificate
// authentication and request logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const clientKey ctxKey = "client"

// HealthPath is served without a client certificate.
const HealthPath = "/healthz"

// CertAuth is a middleware that enforces mutual TLS authentication.
//
// Requests to HealthPath pass through so load balancers can probe the server.
// Every other request must carry a verified client certificate; its Common
// Name is stored in the request context and is available through
// ClientFromContext for logging.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			next.ServeHTTP(w, r)
			return
		}
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		cert := r.TLS.PeerCertificates[0]
		ctx := context.WithValue(r.Context(), clientKey, cert.Subject.CommonName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientFromContext returns the client certificate CN stored by CertAuth,
// or an empty string.
func ClientFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(clientKey).(string); ok {
		return s
	}
	return ""
}
