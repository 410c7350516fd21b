package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Algorithm names the symmetric cipher used for envelopes. It is recorded in
// the key descriptor so a store keeps its algorithm across restarts.
type Algorithm string

const (
	// AES256CBC is the legacy envelope format: AES-256-CBC with PKCS#7
	// padding. It has no authentication tag, so tampering is only detected
	// when it breaks the padding or the JSON payload.
	AES256CBC Algorithm = "aes-256-cbc"
	// AES256GCM stores ciphertext||tag in the same envelope shape and uses
	// the IV as a 16-byte GCM nonce.
	AES256GCM Algorithm = "aes-256-gcm"
)

// IVSize is the length of the per-envelope IV for both algorithms.
const IVSize = 16

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a == AES256CBC || a == AES256GCM
}

// Envelope is the on-disk form of an encrypted JSON value.
type Envelope struct {
	// IV is the hex-encoded initialization vector.
	IV string `json:"iv"`
	// Data is the hex-encoded ciphertext.
	Data string `json:"data"`
}

// Encrypt serializes v as JSON and encrypts it under key with a fresh random IV.
func Encrypt(v any, key []byte, alg Algorithm) (Envelope, error) {
	if len(key) != KeySize {
		return Envelope{}, fmt.Errorf("%w: %w", ErrEncryption, ErrInvalidKey)
	}
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: marshal: %v", ErrEncryption, err)
	}
	defer clearBytes(plaintext)

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("%w: iv: %v", ErrEncryption, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	var ciphertext []byte
	switch alg {
	case AES256CBC:
		padded := pkcs7Pad(plaintext, aes.BlockSize)
		ciphertext = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
		clearBytes(padded)
	case AES256GCM:
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		ciphertext = aead.Seal(nil, iv, plaintext, nil)
	default:
		return Envelope{}, fmt.Errorf("%w: %w %q", ErrEncryption, ErrUnsupportedAlgorithm, alg)
	}

	return Envelope{
		IV:   hex.EncodeToString(iv),
		Data: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt decrypts env under key and unmarshals the JSON plaintext into dst.
// Any cipher, padding, tag or JSON failure is reported as ErrDecryption.
func Decrypt(env Envelope, key []byte, alg Algorithm, dst any) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: %w", ErrDecryption, ErrInvalidKey)
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != IVSize {
		return fmt.Errorf("%w: malformed iv", ErrDecryption)
	}
	ciphertext, err := hex.DecodeString(env.Data)
	if err != nil {
		return fmt.Errorf("%w: malformed data", ErrDecryption)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	var plaintext []byte
	switch alg {
	case AES256CBC:
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
		}
		buf := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ciphertext)
		plaintext, err = pkcs7Unpad(buf, aes.BlockSize)
		if err != nil {
			clearBytes(buf)
			return fmt.Errorf("%w: %v", ErrDecryption, err)
		}
	case AES256GCM:
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		plaintext, err = aead.Open(nil, iv, ciphertext, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecryption, err)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrDecryption, ErrUnsupportedAlgorithm, alg)
	}
	defer clearBytes(plaintext)

	if !json.Valid(plaintext) {
		return fmt.Errorf("%w: plaintext is not JSON", ErrDecryption)
	}
	if err := json.Unmarshal(plaintext, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("bad padding length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
