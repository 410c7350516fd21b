// Package certgen creates the certificate authority and the leaf
// certificates used for mutual TLS between gophotp clients and the server.
package certgen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Validity periods of generated certificates.
const (
	CAValidity     = 10 * 365 * 24 * time.Hour
	ClientValidity = 365 * 24 * time.Hour
	ServerValidity = 365 * 24 * time.Hour
)

var (
	ErrInvalidPEM     = errors.New("certgen: invalid PEM")
	ErrUnsupportedKey = errors.New("certgen: unsupported key type")
	ErrNotCA          = errors.New("certgen: certificate is not a CA")
)

// Issuer signs leaf certificates with a CA certificate and key.
type Issuer struct {
	cert *x509.Certificate
	key  crypto.Signer
	now  func() time.Time
}

// NewIssuer returns an Issuer over an already parsed CA.
func NewIssuer(cert *x509.Certificate, key crypto.Signer) (*Issuer, error) {
	if !cert.IsCA {
		return nil, ErrNotCA
	}
	return &Issuer{cert: cert, key: key, now: time.Now}, nil
}

// LoadIssuer reads a PEM CA certificate and key from disk.
func LoadIssuer(certPath, keyPath string) (*Issuer, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read ca cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ca key: %w", err)
	}
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, fmt.Errorf("parse ca cert: %w", err)
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse ca key: %w", err)
	}
	return NewIssuer(cert, key)
}

// Certificate returns the CA certificate.
func (i *Issuer) Certificate() *x509.Certificate { return i.cert }

// IssueClient creates a client-auth certificate for commonName and returns
// the PEM-encoded certificate and private key.
func (i *Issuer) IssueClient(commonName string) ([]byte, []byte, error) {
	tmpl := i.template(commonName, ClientValidity)
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	return i.issue(tmpl)
}

// IssueServer creates a server-auth certificate valid for hosts, which may
// be DNS names or IP addresses. The first host becomes the Common Name.
func (i *Issuer) IssueServer(hosts ...string) ([]byte, []byte, error) {
	if len(hosts) == 0 {
		return nil, nil, errors.New("certgen: server certificate needs a host")
	}
	tmpl := i.template(hosts[0], ServerValidity)
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	return i.issue(tmpl)
}

func (i *Issuer) template(cn string, validity time.Duration) *x509.Certificate {
	now := i.now()
	return &x509.Certificate{
		SerialNumber: newSerial(),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
}

func (i *Issuer) issue(tmpl *x509.Certificate) ([]byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("gen key: %w", err)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, i.cert, &priv.PublicKey, i.key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cert: %w", err)
	}
	keyPEM, err := EncodePrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return EncodeCertificate(der), keyPEM, nil
}

// NewCA creates a self-signed ECDSA P-256 certificate authority.
func NewCA(commonName string) (*Issuer, []byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gen key: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(CAValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse cert: %w", err)
	}
	keyPEM, err := EncodePrivateKey(priv)
	if err != nil {
		return nil, nil, nil, err
	}
	iss, err := NewIssuer(cert, priv)
	if err != nil {
		return nil, nil, nil, err
	}
	return iss, EncodeCertificate(der), keyPEM, nil
}

// ParseCertificate decodes the first CERTIFICATE block of a PEM file.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

// ParsePrivateKey accepts EC, PKCS#1 RSA and PKCS#8 private keys.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	var (
		key any
		err error
	)
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, block.Type)
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrUnsupportedKey
	}
	return signer, nil
}

// EncodeCertificate PEM-encodes a DER certificate.
func EncodeCertificate(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// EncodePrivateKey PEM-encodes an ECDSA key.
func EncodePrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal priv key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func newSerial() *big.Int {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return serial
}
