package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestCertAuth_HealthPathBypass(t *testing.T) {
	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", HealthPath, nil)
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Error("expected next handler to be called for the health check")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
}

func TestCertAuth_NoCertificate(t *testing.T) {
	for _, path := range []string{"/api/keys", "/api/keys/0/code", "/healthz/extra"} {
		dummy := &dummyHandler{}
		h := CertAuth(dummy)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", path, nil)
		h.ServeHTTP(rec, req)

		if dummy.called {
			t.Errorf("%s: did not expect next handler to be called when no certificate provided", path)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 Unauthorized, got %d", path, rec.Code)
		}
	}
}

func TestCertAuth_ValidCertificate(t *testing.T) {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: "laptop"}}
	ts := &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}

	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/keys", nil)
	req.TLS = ts
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Error("expected next handler to be called when valid certificate provided")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
	if client := ClientFromContext(dummy.ctx); client != "laptop" {
		t.Errorf("expected context client 'laptop', got '%s'", client)
	}
}

func TestClientFromContext(t *testing.T) {
	if empty := ClientFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string for missing client, got '%s'", empty)
	}
	ctx := context.WithValue(context.Background(), clientKey, "bob")
	if val := ClientFromContext(ctx); val != "bob" {
		t.Errorf("expected 'bob', got '%s'", val)
	}
}
