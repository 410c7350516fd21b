package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/service"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4 << 10

var ErrUnauthorized = errors.New("client: server rejected the client certificate")

// RemoteKeeper talks to the /api/keys endpoints of a gophotp server.
type RemoteKeeper struct {
	baseURL string
	http    *http.Client
}

// NewRemoteKeeper returns a keeper for the server at baseURL.
func NewRemoteKeeper(baseURL string, c *http.Client) *RemoteKeeper {
	if c == nil {
		c = http.DefaultClient
	}
	return &RemoteKeeper{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

// LoadClientCertificate builds an HTTP client that presents certFile/keyFile
// and trusts only the CA in caFile.
func LoadClientCertificate(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

func (k *RemoteKeeper) List(ctx context.Context) ([]models.EntryInfo, error) {
	var out []models.EntryInfo
	if err := k.do(ctx, http.MethodGet, "/api/keys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (k *RemoteKeeper) Add(ctx context.Context, req models.NewEntryRequest) (models.EntryInfo, error) {
	var out models.EntryInfo
	if err := k.do(ctx, http.MethodPost, "/api/keys", req, &out); err != nil {
		return models.EntryInfo{}, err
	}
	return out, nil
}

func (k *RemoteKeeper) Remove(ctx context.Context, ref service.Ref) error {
	return k.doRef(ctx, http.MethodDelete, ref, "", nil, nil)
}

func (k *RemoteKeeper) Code(ctx context.Context, ref service.Ref) (models.Code, error) {
	var out models.Code
	if err := k.doRef(ctx, http.MethodGet, ref, "/code", nil, &out); err != nil {
		return models.Code{}, err
	}
	return out, nil
}

func (k *RemoteKeeper) Verify(ctx context.Context, ref service.Ref, code string, skew int) (bool, error) {
	var out models.VerifyResponse
	req := models.VerifyRequest{Code: code, Skew: skew}
	if err := k.doRef(ctx, http.MethodPost, ref, "/verify", req, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (k *RemoteKeeper) QR(ctx context.Context, ref service.Ref) ([]byte, error) {
	var buf bytes.Buffer
	if err := k.doRef(ctx, http.MethodGet, ref, "/qr", nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Enroll asks the server to issue a client certificate for a new device and
// returns the PEM-encoded certificate and key.
func (k *RemoteKeeper) Enroll(ctx context.Context, name string) ([]byte, []byte, error) {
	var out struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	}
	if err := k.do(ctx, http.MethodPost, "/api/devices", map[string]string{"name": name}, &out); err != nil {
		return nil, nil, err
	}
	return []byte(out.Cert), []byte(out.Key), nil
}

// Close releases idle connections.
func (k *RemoteKeeper) Close() error {
	k.http.CloseIdleConnections()
	return nil
}

// SaveCertificate writes <name>.crt and <name>.key into dir.
func SaveCertificate(dir, name string, certPEM, keyPEM []byte) (string, string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}
	certPath := filepath.Join(dir, name+".crt")
	keyPath := filepath.Join(dir, name+".key")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to save %s: %w", certPath, err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to save %s: %w", keyPath, err)
	}
	return certPath, keyPath, nil
}

func refPath(ref service.Ref, suffix string) string {
	return "/api/keys/" + url.PathEscape(ref.String()) + suffix
}

// doRef is do for a single entry. A 404 for an index reference becomes
// ErrIndexOutOfRange, as the local registry reports it.
func (k *RemoteKeeper) doRef(ctx context.Context, method string, ref service.Ref, suffix string, body, out any) error {
	err := k.do(ctx, method, refPath(ref, suffix), body, out)
	if !ref.ByID() && errors.Is(err, service.ErrEntryNotFound) {
		return fmt.Errorf("%w: %s", service.ErrIndexOutOfRange, ref)
	}
	return err
}

// do sends body as JSON and decodes a 2xx response into out. A *bytes.Buffer
// out receives the raw body.
func (k *RemoteKeeper) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err = dst.ReadFrom(resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// statusError maps API status codes back onto the registry's errors so
// callers handle local and remote failures alike.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", service.ErrEntryNotFound, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", service.ErrInvalidEntry, msg)
	case http.StatusServiceUnavailable:
		return service.ErrLocked
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("server error: %s: %s", resp.Status, msg)
	}
}
