package otp

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var ErrInvalidURI = errors.New("otp: invalid otpauth URI")

// KeyInfo describes an enrolment parsed from or rendered to an otpauth URI.
type KeyInfo struct {
	Issuer      string
	AccountName string
	Secret      string
	Period      int
	Digits      int
}

// ParseKeyURI parses an otpauth://totp/ URI as produced by authenticator
// setup pages and QR codes.
func ParseKeyURI(raw string) (KeyInfo, error) {
	key, err := potp.NewKeyFromURL(strings.TrimSpace(raw))
	if err != nil {
		return KeyInfo{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if key.Type() != "totp" {
		return KeyInfo{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidURI, key.Type())
	}
	if key.Algorithm() != potp.AlgorithmSHA1 {
		return KeyInfo{}, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidURI, key.Algorithm())
	}
	if len(DecodeBase32(key.Secret())) == 0 {
		return KeyInfo{}, fmt.Errorf("%w: %v", ErrInvalidURI, ErrInvalidSecret)
	}

	return KeyInfo{
		Issuer:      key.Issuer(),
		AccountName: key.AccountName(),
		Secret:      key.Secret(),
		Period:      int(key.Period()),
		Digits:      key.Digits().Length(),
	}, nil
}

// KeyURI renders info as an otpauth://totp/ URI. Zero Period and Digits are
// replaced by the package defaults.
func KeyURI(info KeyInfo) string {
	if info.Period == 0 {
		info.Period = DefaultPeriod
	}
	if info.Digits == 0 {
		info.Digits = DefaultDigits
	}

	label := url.PathEscape(info.AccountName)
	if info.Issuer != "" {
		label = url.PathEscape(info.Issuer) + ":" + label
	}

	query := url.Values{}
	query.Set("secret", strings.ToUpper(strings.TrimRight(info.Secret, "=")))
	if info.Issuer != "" {
		query.Set("issuer", info.Issuer)
	}
	query.Set("algorithm", "SHA1")
	query.Set("digits", strconv.Itoa(info.Digits))
	query.Set("period", strconv.Itoa(info.Period))

	return "otpauth://totp/" + label + "?" + query.Encode()
}

// NewSecret generates a random 160-bit Base32 secret.
func NewSecret(issuer, accountName string) (string, error) {
	if issuer == "" {
		issuer = "GophOTP"
	}
	if accountName == "" {
		accountName = "default"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		SecretSize:  20,
		Algorithm:   potp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return key.Secret(), nil
}
