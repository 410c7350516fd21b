// Package vault implements the password-protected encrypted store: key
// derivation, the validation-token protocol and the encrypted config file.
package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/GophOTP/internal/blob"

	"go.uber.org/zap"
)

// Default blob names.
const (
	DefaultKeyFile        = "key.json"
	DefaultValidationFile = "validation.json"
	DefaultConfigFile     = "config.json"
)

// State is the lifecycle state of a Vault.
type State int

const (
	Uninitialized State = iota
	KeyVerified
	InvalidPassword
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case KeyVerified:
		return "key_verified"
	case InvalidPassword:
		return "invalid_password"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// KeyDescriptor is the unencrypted record of how the key was derived.
// It is written once when the vault is first initialized.
type KeyDescriptor struct {
	Algorithm Algorithm `json:"algorithm"`
	Salt      string    `json:"salt"`
	CreatedAt int64     `json:"created_at"`
}

type validationToken struct {
	Valid bool `json:"valid"`
}

// Vault owns the derived key for one store.
type Vault struct {
	store  blob.Store
	logger *zap.Logger
	now    func() time.Time

	keyFile        string
	validationFile string
	configFile     string
	defaultAlg     Algorithm

	mu    sync.Mutex
	state State
	key   []byte
	alg   Algorithm
}

// Option configures a Vault.
type Option func(*Vault)

// WithPaths overrides the blob names of the key descriptor, validation token
// and config envelope.
func WithPaths(key, validation, config string) Option {
	return func(v *Vault) {
		v.keyFile = key
		v.validationFile = validation
		v.configFile = config
	}
}

// WithAlgorithm selects the cipher for a store created by this Vault.
// Existing stores keep the algorithm named in their descriptor.
func WithAlgorithm(alg Algorithm) Option {
	return func(v *Vault) {
		v.defaultAlg = alg
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock sets the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// New returns an uninitialized Vault over store.
func New(store blob.Store, opts ...Option) *Vault {
	v := &Vault{
		store:          store,
		logger:         zap.NewNop(),
		now:            time.Now,
		keyFile:        DefaultKeyFile,
		validationFile: DefaultValidationFile,
		configFile:     DefaultConfigFile,
		defaultAlg:     AES256GCM,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns the current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Algorithm returns the cipher in use, or "" before initialization.
func (v *Vault) Algorithm() Algorithm {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.alg
}

// InitEncryption derives the key from password. On a fresh store it creates
// the validation token and then the key descriptor; otherwise it checks the
// password against the stored token. The returned slice is a copy of the key.
func (v *Vault) InitEncryption(ctx context.Context, password string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case KeyVerified:
		return nil, ErrAlreadyInitialized
	case InvalidPassword:
		return nil, ErrInvalidPassword
	}

	raw, err := v.store.Read(ctx, v.keyFile)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		return v.create(ctx, password)
	case err != nil:
		return nil, fmt.Errorf("%w: read key descriptor: %w", ErrConfigIO, err)
	}
	return v.open(ctx, password, raw)
}

func (v *Vault) create(ctx context.Context, password string) ([]byte, error) {
	if !v.defaultAlg.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedAlgorithm, v.defaultAlg)
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	token, err := Encrypt(validationToken{Valid: true}, key, v.defaultAlg)
	if err != nil {
		clearBytes(key)
		return nil, err
	}
	if err := v.writeJSON(ctx, v.validationFile, token); err != nil {
		clearBytes(key)
		return nil, err
	}

	desc := KeyDescriptor{
		Algorithm: v.defaultAlg,
		Salt:      hex.EncodeToString(salt),
		CreatedAt: v.now().UnixMilli(),
	}
	if err := v.writeJSON(ctx, v.keyFile, desc); err != nil {
		clearBytes(key)
		return nil, err
	}

	v.logger.Info("encryption initialized", zap.String("algorithm", string(desc.Algorithm)))
	return v.accept(key, desc.Algorithm), nil
}

func (v *Vault) open(ctx context.Context, password string, raw []byte) ([]byte, error) {
	var desc KeyDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: key descriptor: %v", ErrInvalidSalt, err)
	}
	salt, err := hex.DecodeString(desc.Salt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: key descriptor salt is not hex", ErrInvalidSalt)
	}
	alg := desc.Algorithm
	if alg == "" {
		alg = AES256CBC
	}
	if !alg.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedAlgorithm, alg)
	}

	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	ok, err := v.checkToken(ctx, key, alg)
	if err != nil {
		clearBytes(key)
		return nil, err
	}
	if !ok {
		clearBytes(key)
		v.state = InvalidPassword
		v.logger.Warn("password rejected by validation token")
		return nil, ErrInvalidPassword
	}

	v.logger.Info("encryption key verified", zap.String("algorithm", string(alg)))
	return v.accept(key, alg), nil
}

// checkToken reports whether key decrypts the validation token to
// {"valid":true}. A missing token counts as a mismatch; other read failures
// are returned as ErrConfigIO.
func (v *Vault) checkToken(ctx context.Context, key []byte, alg Algorithm) (bool, error) {
	raw, err := v.store.Read(ctx, v.validationFile)
	if errors.Is(err, blob.ErrNotFound) {
		v.logger.Warn("validation token missing")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read validation token: %w", ErrConfigIO, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, nil
	}
	var token validationToken
	if err := Decrypt(env, key, alg, &token); err != nil {
		return false, nil
	}
	return token.Valid, nil
}

func (v *Vault) accept(key []byte, alg Algorithm) []byte {
	v.key = key
	v.alg = alg
	v.state = KeyVerified
	return append([]byte(nil), key...)
}

// LoadConfig decrypts the config envelope into dst. It returns
// ErrConfigNotFound when the store has no config yet.
func (v *Vault) LoadConfig(ctx context.Context, dst any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != KeyVerified {
		return ErrNotInitialized
	}

	raw, err := v.store.Read(ctx, v.configFile)
	if errors.Is(err, blob.ErrNotFound) {
		return ErrConfigNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: read config: %w", ErrConfigIO, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: config envelope: %v", ErrDecryption, err)
	}
	return Decrypt(env, v.key, v.alg, dst)
}

// SaveConfig encrypts src and atomically replaces the config envelope.
func (v *Vault) SaveConfig(ctx context.Context, src any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != KeyVerified {
		return ErrNotInitialized
	}

	env, err := Encrypt(src, v.key, v.alg)
	if err != nil {
		return err
	}
	return v.writeJSON(ctx, v.configFile, env)
}

// Close zeroes the key and returns a verified vault to Uninitialized.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clearBytes(v.key)
	v.key = nil
	if v.state == KeyVerified {
		v.state = Uninitialized
	}
}

func (v *Vault) writeJSON(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrConfigIO, name, err)
	}
	if err := v.store.Write(ctx, name, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConfigIO, name, err)
	}
	return nil
}
