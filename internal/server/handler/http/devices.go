package http

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/atinyakov/GophOTP/internal/middleware"
	"go.uber.org/zap"
)

var deviceName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// CertIssuer signs client certificates for new devices.
type CertIssuer interface {
	IssueClient(commonName string) (certPEM, keyPEM []byte, err error)
}

// DevicesHandler lets an enrolled device enroll another one.
type DevicesHandler struct {
	Issuer CertIssuer
	Logger *zap.Logger
}

// EnrollRequest is the body of POST /api/devices.
type EnrollRequest struct {
	Name string `json:"name"`
}

// EnrollResponse carries the PEM-encoded certificate and key of the new device.
type EnrollResponse struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Enroll handles POST /api/devices. The caller must already present a valid
// client certificate; the new certificate is signed by the server's CA.
func (h *DevicesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !deviceName.MatchString(req.Name) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	certPEM, keyPEM, err := h.Issuer.IssueClient(req.Name)
	if err != nil {
		h.logger().Error("failed to issue certificate", zap.Error(err))
		http.Error(w, "failed to generate certificate", http.StatusInternalServerError)
		return
	}

	h.logger().Info("device enrolled",
		zap.String("device", req.Name),
		zap.String("by", middleware.ClientFromContext(r.Context())),
	)
	writeJSON(w, http.StatusCreated, EnrollResponse{Cert: string(certPEM), Key: string(keyPEM)})
}

func (h *DevicesHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
