package http_test

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/GophOTP/internal/blob"
	"github.com/atinyakov/GophOTP/internal/certgen"
	handler "github.com/atinyakov/GophOTP/internal/server/handler/http"
	"github.com/atinyakov/GophOTP/internal/service"
	"github.com/atinyakov/GophOTP/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingIssuer struct{}

func (failingIssuer) IssueClient(string) ([]byte, []byte, error) {
	return nil, nil, errors.New("no CA")
}

func newDevicesRouter(t *testing.T, iss handler.CertIssuer, log *zap.Logger) http.Handler {
	t.Helper()
	reg := service.NewRegistry(vault.New(blob.NewMemoryStore()))
	keys := handler.NewKeysHandler(reg, zap.NewNop())
	return handler.NewRouter(keys, &handler.DevicesHandler{Issuer: iss, Logger: log}, zap.NewNop())
}

func enroll(router http.Handler, body string, withCert bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/devices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withCert {
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: "laptop"}},
		}}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEnroll(t *testing.T) {
	iss, _, _, err := certgen.NewCA("Test CA")
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	router := newDevicesRouter(t, iss, zap.New(core))

	rec := enroll(router, `{"name":"phone"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handler.EnrollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	pair, err := tls.X509KeyPair([]byte(resp.Cert), []byte(resp.Key))
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "phone", cert.Subject.CommonName)
	require.NoError(t, cert.CheckSignatureFrom(iss.Certificate()))

	entries := logs.FilterMessage("device enrolled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "phone", entries[0].ContextMap()["device"])
	assert.Equal(t, "laptop", entries[0].ContextMap()["by"])
	assert.NotContains(t, entries[0].ContextMap(), "key")
}

func TestEnroll_Rejects(t *testing.T) {
	iss, _, _, err := certgen.NewCA("Test CA")
	require.NoError(t, err)
	router := newDevicesRouter(t, iss, nil)

	assert.Equal(t, http.StatusUnauthorized, enroll(router, `{"name":"phone"}`, false).Code)
	for _, body := range []string{`nope`, `{}`, `{"name":"a b"}`, `{"name":"` + strings.Repeat("x", 65) + `"}`} {
		assert.Equal(t, http.StatusBadRequest, enroll(router, body, true).Code, body)
	}
}

func TestEnroll_IssuerFailure(t *testing.T) {
	router := newDevicesRouter(t, failingIssuer{}, nil)
	assert.Equal(t, http.StatusInternalServerError, enroll(router, `{"name":"phone"}`, true).Code)
}

func TestEnroll_DisabledWithoutIssuer(t *testing.T) {
	reg := service.NewRegistry(vault.New(blob.NewMemoryStore()))
	router := handler.NewRouter(handler.NewKeysHandler(reg, nil), nil, zap.NewNop())
	rec := enroll(router, `{"name":"phone"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
