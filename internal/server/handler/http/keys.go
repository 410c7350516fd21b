// Package http provides the HTTP handlers of the GophOTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/otp"
	"github.com/atinyakov/GophOTP/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// qrSize is the edge length of rendered QR codes in pixels.
const qrSize = 256

// Registry defines the registry operations required by KeysHandler.
type Registry interface {
	List() []models.EntryInfo
	Add(e models.TotpEntry) (models.EntryInfo, error)
	Import(uri string) (models.EntryInfo, error)
	RemoveRef(ref service.Ref) error
	GenerateRef(ref service.Ref) (models.Code, error)
	KeyURIRef(ref service.Ref) (string, error)
	VerifyRef(ref service.Ref, code string, skew int) (bool, error)
	Save(ctx context.Context) error
	Revert()
}

// KeysHandler serves /api/keys.
type KeysHandler struct {
	Registry Registry
	Logger   *zap.Logger

	// mu serializes mutate+save so a failed save reverts only its own change.
	mu sync.Mutex
}

// NewKeysHandler returns a handler over reg.
func NewKeysHandler(reg Registry, log *zap.Logger) *KeysHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeysHandler{Registry: reg, Logger: log}
}

// List handles GET /api/keys.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.List())
}

// Create handles POST /api/keys. A body with "uri" imports an otpauth URI;
// otherwise the entry fields are used. The registry is saved before replying.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NewEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		info models.EntryInfo
		err  error
	)
	if req.URI != "" {
		info, err = h.Registry.Import(req.URI)
	} else {
		info, err = h.Registry.Add(models.TotpEntry{
			Name:        req.Name,
			Platform:    req.Platform,
			Description: req.Description,
			Rank:        req.Rank,
			Secret:      req.Secret,
			Period:      req.Period,
			Digits:      req.Digits,
		})
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !h.save(w, r) {
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Delete handles DELETE /api/keys/{ref}.
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, err := service.ParseRef(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Registry.RemoveRef(ref); err != nil {
		h.writeError(w, err)
		return
	}
	if !h.save(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Code handles GET /api/keys/{ref}/code.
func (h *KeysHandler) Code(w http.ResponseWriter, r *http.Request) {
	ref, err := service.ParseRef(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	code, err := h.Registry.GenerateRef(ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, code)
}

// Verify handles POST /api/keys/{ref}/verify.
func (h *KeysHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ref, err := service.ParseRef(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Skew < 0 || req.Skew > otp.MaxSkew {
		http.Error(w, "skew out of range", http.StatusBadRequest)
		return
	}

	ok, err := h.Registry.VerifyRef(ref, req.Code, req.Skew)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.VerifyResponse{Valid: ok})
}

// QR handles GET /api/keys/{ref}/qr with a PNG of the otpauth URI.
func (h *KeysHandler) QR(w http.ResponseWriter, r *http.Request) {
	ref, err := service.ParseRef(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	uri, err := h.Registry.KeyURIRef(ref)
	if err != nil {
		h.writeError(w, err)
		return
	}

	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		h.Logger.Error("failed to render QR code", zap.Error(err))
		http.Error(w, "failed to render QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// save persists the registry, reverting the pending change on failure.
// It reports whether the caller may write a success response.
func (h *KeysHandler) save(w http.ResponseWriter, r *http.Request) bool {
	if err := h.Registry.Save(r.Context()); err != nil {
		h.Registry.Revert()
		h.Logger.Error("failed to save registry", zap.Error(err))
		http.Error(w, "failed to save", http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *KeysHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrIndexOutOfRange), errors.Is(err, service.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidEntry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrLocked):
		http.Error(w, "registry is locked", http.StatusServiceUnavailable)
	default:
		h.Logger.Error("registry operation failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
