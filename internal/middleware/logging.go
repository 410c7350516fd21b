package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// WithRequestLogging logs one line per request with its status, size,
// duration and the client certificate CN, if any. Mount it before CertAuth
// so rejected requests are logged too.
func WithRequestLogging(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("uri", r.URL.RequestURI()),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			}
			if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
				fields = append(fields, zap.String("client", r.TLS.PeerCertificates[0].Subject.CommonName))
			}
			if reqID := chiMiddleware.GetReqID(r.Context()); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("request", fields...)
			case status >= http.StatusBadRequest:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}
