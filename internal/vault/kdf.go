package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the derived key length, 256 bits for AES-256.
	KeySize = 32
	// SaltSize is the length of a freshly generated salt.
	SaltSize = 16
	// Iterations is the PBKDF2 round count.
	Iterations = 100_000
)

// DeriveKey derives a 32-byte key from password and salt with
// PBKDF2-HMAC-SHA-256. The result depends only on its inputs.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrInvalidSalt)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrKeyDerivation)
	}
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New), nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return salt, nil
}

// clearBytes zeroes b in place.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
