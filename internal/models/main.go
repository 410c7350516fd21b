// Package models defines the data structures shared by the registry, the
// HTTP API and the CLI client.
package models

import "time"

// TotpEntry is one named TOTP secret as persisted inside the encrypted config.
type TotpEntry struct {
	// ID is a stable identifier assigned on add; older files may lack it.
	ID string `json:"id,omitempty"`
	// Name is the account name shown to the user.
	Name string `json:"name"`
	// Platform is the issuer, e.g. "GitHub".
	Platform string `json:"platform"`
	// Description holds free-form notes.
	Description string `json:"description"`
	// Rank orders entries for display; 1 when not set.
	Rank int `json:"rank"`
	// Secret is the Base32 shared secret.
	Secret string `json:"key"`
	// Period overrides the 30 second time step when non-zero.
	Period int `json:"period,omitempty"`
	// Digits overrides the 6 digit code length when non-zero.
	Digits int `json:"digits,omitempty"`
}

// Config is the plaintext of the encrypted config envelope.
type Config struct {
	Keys []TotpEntry `json:"keys"`
}

// EntryInfo is the redacted view of an entry. It never carries the secret.
type EntryInfo struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
	Period      int    `json:"period"`
	Digits      int    `json:"digits"`
}

// Code is a generated one-time code and the end of its validity window.
type Code struct {
	Code      string    `json:"code"`
	Period    int       `json:"period"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntryRequest is the body of POST /api/keys. When URI is set the other
// fields are ignored and the entry is imported from the otpauth URI.
type NewEntryRequest struct {
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Description string `json:"description,omitempty"`
	Rank        int    `json:"rank,omitempty"`
	Secret      string `json:"key,omitempty"`
	Period      int    `json:"period,omitempty"`
	Digits      int    `json:"digits,omitempty"`
}

// VerifyRequest is the body of POST /api/keys/{ref}/verify. Skew is the
// number of neighbouring time steps accepted on either side.
type VerifyRequest struct {
	Code string `json:"code"`
	Skew int    `json:"skew"`
}

// VerifyResponse reports whether the submitted code matched.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}
