package client_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/GophOTP/internal/blob"
	"github.com/atinyakov/GophOTP/internal/certgen"
	"github.com/atinyakov/GophOTP/internal/client"
	"github.com/atinyakov/GophOTP/internal/models"
	handler "github.com/atinyakov/GophOTP/internal/server/handler/http"
	"github.com/atinyakov/GophOTP/internal/service"
	"github.com/atinyakov/GophOTP/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mtlsEnv struct {
	server *httptest.Server
	dir    string
	caPath string
	reg    *service.Registry
}

// newMTLSServer starts the API behind mutual TLS and writes ca.crt plus a
// client pair named "laptop" into a temp dir.
func newMTLSServer(t *testing.T, unlocked bool) *mtlsEnv {
	t.Helper()
	iss, caPEM, _, err := certgen.NewCA("Test CA")
	require.NoError(t, err)
	serverCert, serverKey, err := iss.IssueServer("127.0.0.1")
	require.NoError(t, err)
	pair, err := tls.X509KeyPair(serverCert, serverKey)
	require.NoError(t, err)

	reg := service.NewRegistry(vault.New(blob.NewMemoryStore()))
	if unlocked {
		require.NoError(t, reg.Init(context.Background(), "pw"))
	}
	keys := handler.NewKeysHandler(reg, zap.NewNop())
	router := handler.NewRouter(keys, &handler.DevicesHandler{Issuer: iss}, zap.NewNop())

	pool := x509.NewCertPool()
	pool.AddCert(iss.Certificate())
	srv := httptest.NewUnstartedServer(router)
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{pair},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.crt")
	require.NoError(t, os.WriteFile(caPath, caPEM, 0o600))
	certPEM, keyPEM, err := iss.IssueClient("laptop")
	require.NoError(t, err)
	_, _, err = client.SaveCertificate(dir, "laptop", certPEM, keyPEM)
	require.NoError(t, err)

	return &mtlsEnv{server: srv, dir: dir, caPath: caPath, reg: reg}
}

func (e *mtlsEnv) keeper(t *testing.T, name string) *client.RemoteKeeper {
	t.Helper()
	hc, err := client.LoadClientCertificate(
		filepath.Join(e.dir, name+".crt"), filepath.Join(e.dir, name+".key"), e.caPath)
	require.NoError(t, err)
	return client.NewRemoteKeeper(e.server.URL+"/", hc)
}

func TestRemoteKeeper_Lifecycle(t *testing.T) {
	ctx := context.Background()
	env := newMTLSServer(t, true)
	k := env.keeper(t, "laptop")
	defer k.Close()

	alice, err := k.Add(ctx, models.NewEntryRequest{Name: "alice", Platform: "Acme", Secret: secret})
	require.NoError(t, err)
	_, err = k.Add(ctx, models.NewEntryRequest{URI: "otpauth://totp/Acme:bob?secret=" + secret + "&issuer=Acme"})
	require.NoError(t, err)

	list, err := k.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bob", list[1].Name)

	byID := service.Ref{Index: -1, ID: alice.ID}
	code, err := k.Code(ctx, byID)
	require.NoError(t, err)
	assert.Len(t, code.Code, 6)
	assert.Equal(t, 30, code.Period)

	ok, err := k.Verify(ctx, byID, code.Code, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = k.Verify(ctx, byID, "000000x", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	img, err := k.QR(ctx, service.Ref{Index: 1})
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(img))
	require.NoError(t, err)

	require.NoError(t, k.Remove(ctx, byID))
	assert.Equal(t, 1, env.reg.Len())
}

func TestRemoteKeeper_Errors(t *testing.T) {
	ctx := context.Background()
	env := newMTLSServer(t, true)
	k := env.keeper(t, "laptop")

	_, err := k.Code(ctx, service.Ref{Index: 4})
	assert.ErrorIs(t, err, service.ErrIndexOutOfRange)
	err = k.Remove(ctx, service.Ref{Index: 4})
	assert.ErrorIs(t, err, service.ErrIndexOutOfRange)
	_, err = k.Code(ctx, service.Ref{Index: -1, ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"})
	assert.ErrorIs(t, err, service.ErrEntryNotFound)
	_, err = k.Add(ctx, models.NewEntryRequest{Name: "x"})
	assert.ErrorIs(t, err, service.ErrInvalidEntry)

	locked := newMTLSServer(t, false)
	_, err = locked.keeper(t, "laptop").Code(ctx, service.Ref{Index: 0})
	assert.ErrorIs(t, err, service.ErrLocked)
}

func TestRemoteKeeper_RequiresClientCertificate(t *testing.T) {
	env := newMTLSServer(t, true)

	pool := x509.NewCertPool()
	caPEM, err := os.ReadFile(env.caPath)
	require.NoError(t, err)
	require.True(t, pool.AppendCertsFromPEM(caPEM))
	anon := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}

	_, err = client.NewRemoteKeeper(env.server.URL, anon).List(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestRemoteKeeper_Enroll(t *testing.T) {
	ctx := context.Background()
	env := newMTLSServer(t, true)

	certPEM, keyPEM, err := env.keeper(t, "laptop").Enroll(ctx, "phone")
	require.NoError(t, err)
	certPath, keyPath, err := client.SaveCertificate(env.dir, "phone", certPEM, keyPEM)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, "phone.crt"), certPath)
	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The new device can use the API right away.
	list, err := env.keeper(t, "phone").List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoadClientCertificate_Errors(t *testing.T) {
	env := newMTLSServer(t, true)
	cert := filepath.Join(env.dir, "laptop.crt")
	key := filepath.Join(env.dir, "laptop.key")

	_, err := client.LoadClientCertificate("missing.crt", key, env.caPath)
	assert.Error(t, err)
	_, err = client.LoadClientCertificate(cert, key, filepath.Join(env.dir, "missing.crt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bogus := filepath.Join(env.dir, "bogus.crt")
	require.NoError(t, os.WriteFile(bogus, []byte("not pem"), 0o600))
	_, err = client.LoadClientCertificate(cert, key, bogus)
	assert.Error(t, err)
}
