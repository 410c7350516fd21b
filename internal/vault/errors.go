package vault

import "errors"

var (
	// Key material errors
	ErrInvalidSalt   = errors.New("vault: invalid salt")
	ErrKeyDerivation = errors.New("vault: key derivation failed")
	ErrInvalidKey    = errors.New("vault: encryption key must be 32 bytes")

	// Envelope errors
	ErrEncryption = errors.New("vault: encryption failed")
	ErrDecryption = errors.New("vault: decryption failed")

	// Lifecycle errors
	ErrInvalidPassword      = errors.New("vault: invalid password")
	ErrAlreadyInitialized   = errors.New("vault: encryption already initialized")
	ErrNotInitialized       = errors.New("vault: encryption not initialized")
	ErrUnsupportedAlgorithm = errors.New("vault: unsupported algorithm")

	// Storage errors
	ErrConfigIO       = errors.New("vault: config storage failure")
	ErrConfigNotFound = errors.New("vault: config not found")
)
