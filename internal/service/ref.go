package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/otp"

	"github.com/google/uuid"
)

var ErrInvalidRef = errors.New("registry: reference must be an index or an entry id")

// Ref addresses an entry either by list position or by id.
type Ref struct {
	Index int
	ID    string
}

// ByID reports whether the ref carries an entry id.
func (r Ref) ByID() bool { return r.ID != "" }

func (r Ref) String() string {
	if r.ByID() {
		return r.ID
	}
	return strconv.Itoa(r.Index)
}

// ParseRef accepts a decimal index or a UUID.
func ParseRef(s string) (Ref, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return Ref{Index: n}, nil
	}
	if _, err := uuid.Parse(s); err == nil {
		return Ref{Index: -1, ID: s}, nil
	}
	return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
}

// RemoveRef removes the entry addressed by ref.
func (r *Registry) RemoveRef(ref Ref) error {
	if ref.ByID() {
		return r.RemoveByID(ref.ID)
	}
	return r.Remove(ref.Index)
}

// GenerateRef returns the current code of the entry addressed by ref.
func (r *Registry) GenerateRef(ref Ref) (models.Code, error) {
	if ref.ByID() {
		return r.GenerateByID(ref.ID)
	}
	return r.Generate(ref.Index)
}

// KeyURIRef returns the otpauth URI of the entry addressed by ref.
func (r *Registry) KeyURIRef(ref Ref) (string, error) {
	if ref.ByID() {
		return r.KeyURIByID(ref.ID)
	}
	return r.KeyURI(ref.Index)
}

// VerifyRef checks code against the entry addressed by ref.
func (r *Registry) VerifyRef(ref Ref, code string, skew int) (bool, error) {
	var (
		e   models.TotpEntry
		err error
	)
	if ref.ByID() {
		e, err = r.entryByID(ref.ID)
	} else {
		e, err = r.entryAt(ref.Index)
	}
	if err != nil {
		return false, err
	}
	return otp.Validate(e.Secret, code, r.now().UnixMilli(), skew, entryOptions(e)...)
}
