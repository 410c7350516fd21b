// Package service implements the Secret Registry: the list of named TOTP
// entries kept encrypted in a vault.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/otp"
	"github.com/atinyakov/GophOTP/internal/vault"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrLocked          = errors.New("registry: locked")
	ErrIndexOutOfRange = errors.New("registry: index out of range")
	ErrEntryNotFound   = errors.New("registry: entry not found")
	ErrInvalidEntry    = errors.New("registry: invalid entry")
)

// Vault is the encrypted store the registry persists through.
type Vault interface {
	InitEncryption(ctx context.Context, password string) ([]byte, error)
	LoadConfig(ctx context.Context, dst any) error
	SaveConfig(ctx context.Context, src any) error
	Close()
}

// Registry holds the decrypted entry list for one vault. It is safe for
// concurrent use.
type Registry struct {
	vault  Vault
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.RWMutex
	unlocked bool
	entries  []models.TotpEntry
	// saved is the list as last loaded or persisted, for Revert.
	saved []models.TotpEntry
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source used for code generation.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator for entry ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRegistry returns a locked registry over v. Call Init before use.
func NewRegistry(v Vault, opts ...Option) *Registry {
	r := &Registry{
		vault:  v,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init unlocks the vault with password and loads the entry list. A store
// without a config starts empty. Entries lacking an id get one and the list
// is saved so ids stay stable across restarts.
func (r *Registry) Init(ctx context.Context, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.vault.InitEncryption(ctx, password)
	if err != nil {
		return err
	}
	// The vault keeps its own copy.
	for i := range key {
		key[i] = 0
	}

	var cfg models.Config
	err = r.vault.LoadConfig(ctx, &cfg)
	switch {
	case errors.Is(err, vault.ErrConfigNotFound):
		cfg.Keys = []models.TotpEntry{}
	case err != nil:
		r.vault.Close()
		return err
	}

	assigned := 0
	for i := range cfg.Keys {
		if cfg.Keys[i].ID == "" {
			cfg.Keys[i].ID = r.newID()
			assigned++
		}
	}

	r.entries = cfg.Keys
	r.unlocked = true
	r.saved = cloneEntries(r.entries)

	if assigned > 0 {
		if err := r.saveLocked(ctx); err != nil {
			r.logger.Warn("failed to persist assigned entry ids", zap.Int("count", assigned), zap.Error(err))
		}
	}
	r.logger.Info("registry unlocked", zap.Int("entries", len(r.entries)))
	return nil
}

// Save writes the full entry list through the vault.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return ErrLocked
	}
	return r.saveLocked(ctx)
}

func (r *Registry) saveLocked(ctx context.Context) error {
	if err := r.vault.SaveConfig(ctx, models.Config{Keys: r.entries}); err != nil {
		return err
	}
	r.saved = cloneEntries(r.entries)
	return nil
}

// Revert discards in-memory changes made since the last Init or Save.
func (r *Registry) Revert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return
	}
	r.entries = cloneEntries(r.saved)
}

// Add validates e and appends it. A zero rank becomes 1. Names need not be unique.
func (r *Registry) Add(e models.TotpEntry) (models.EntryInfo, error) {
	if err := validateEntry(&e); err != nil {
		return models.EntryInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return models.EntryInfo{}, ErrLocked
	}

	e.ID = r.newID()
	r.entries = append(r.entries, e)
	idx := len(r.entries) - 1
	r.logger.Info("entry added", zap.Int("index", idx), zap.String("id", e.ID))
	return info(idx, e), nil
}

// Import adds an entry from an otpauth://totp URI. The issuer becomes the
// platform and the account becomes the name.
func (r *Registry) Import(uri string) (models.EntryInfo, error) {
	key, err := otp.ParseKeyURI(uri)
	if err != nil {
		return models.EntryInfo{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	e := models.TotpEntry{
		Name:     key.AccountName,
		Platform: key.Issuer,
		Secret:   key.Secret,
	}
	if key.Period != otp.DefaultPeriod {
		e.Period = key.Period
	}
	if key.Digits != otp.DefaultDigits {
		e.Digits = key.Digits
	}
	return r.Add(e)
}

// Remove deletes the entry at index.
func (r *Registry) Remove(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return ErrLocked
	}
	if index < 0 || index >= len(r.entries) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(r.entries))
	}
	r.removeLocked(index)
	return nil
}

// RemoveByID deletes the entry with the given id.
func (r *Registry) RemoveByID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return ErrLocked
	}
	idx, ok := r.indexOf(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	r.removeLocked(idx)
	return nil
}

func (r *Registry) removeLocked(index int) {
	id := r.entries[index].ID
	r.entries = append(r.entries[:index:index], r.entries[index+1:]...)
	r.logger.Info("entry removed", zap.Int("index", index), zap.String("id", id))
}

// List returns the redacted entries in list order. It is empty while locked.
func (r *Registry) List() []models.EntryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.EntryInfo, 0, len(r.entries))
	for i, e := range r.entries {
		out = append(out, info(i, e))
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Generate returns the current code for the entry at index.
func (r *Registry) Generate(index int) (models.Code, error) {
	e, err := r.entryAt(index)
	if err != nil {
		return models.Code{}, err
	}
	return r.generate(e)
}

// GenerateByID returns the current code for the entry with the given id.
func (r *Registry) GenerateByID(id string) (models.Code, error) {
	e, err := r.entryByID(id)
	if err != nil {
		return models.Code{}, err
	}
	return r.generate(e)
}

// Verify checks code against the entry at index, allowing skew windows
// either side of the current one.
func (r *Registry) Verify(index int, code string, skew int) (bool, error) {
	e, err := r.entryAt(index)
	if err != nil {
		return false, err
	}
	return otp.Validate(e.Secret, code, r.now().UnixMilli(), skew, entryOptions(e)...)
}

// KeyURI returns the otpauth URI for the entry at index.
func (r *Registry) KeyURI(index int) (string, error) {
	e, err := r.entryAt(index)
	if err != nil {
		return "", err
	}
	return keyURI(e), nil
}

// KeyURIByID returns the otpauth URI for the entry with the given id.
func (r *Registry) KeyURIByID(id string) (string, error) {
	e, err := r.entryByID(id)
	if err != nil {
		return "", err
	}
	return keyURI(e), nil
}

// Close drops the entries and zeroes the vault key.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.saved = nil
	r.unlocked = false
	r.vault.Close()
}

func (r *Registry) generate(e models.TotpEntry) (models.Code, error) {
	nowMs := r.now().UnixMilli()
	period := e.Period
	if period == 0 {
		period = otp.DefaultPeriod
	}
	code, err := otp.GenerateTOTP(e.Secret, nowMs, entryOptions(e)...)
	if err != nil {
		return models.Code{}, err
	}
	return models.Code{
		Code:      code,
		Period:    period,
		ExpiresAt: time.UnixMilli(nowMs).Add(otp.Remaining(nowMs, period)).UTC(),
	}, nil
}

func (r *Registry) entryAt(index int) (models.TotpEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.unlocked {
		return models.TotpEntry{}, ErrLocked
	}
	if index < 0 || index >= len(r.entries) {
		return models.TotpEntry{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(r.entries))
	}
	return r.entries[index], nil
}

func (r *Registry) entryByID(id string) (models.TotpEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.unlocked {
		return models.TotpEntry{}, ErrLocked
	}
	idx, ok := r.indexOf(id)
	if !ok {
		return models.TotpEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return r.entries[idx], nil
}

func (r *Registry) indexOf(id string) (int, bool) {
	for i, e := range r.entries {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}

func validateEntry(e *models.TotpEntry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if len(otp.DecodeBase32(e.Secret)) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, otp.ErrInvalidSecret)
	}
	if e.Period < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, otp.ErrInvalidPeriod)
	}
	if e.Digits < 0 || e.Digits > 9 {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, otp.ErrInvalidDigits)
	}
	if e.Rank == 0 {
		e.Rank = 1
	}
	return nil
}

func entryOptions(e models.TotpEntry) []otp.Option {
	var opts []otp.Option
	if e.Period != 0 {
		opts = append(opts, otp.WithPeriod(e.Period))
	}
	if e.Digits != 0 {
		opts = append(opts, otp.WithDigits(e.Digits))
	}
	return opts
}

func keyURI(e models.TotpEntry) string {
	return otp.KeyURI(otp.KeyInfo{
		Issuer:      e.Platform,
		AccountName: e.Name,
		Secret:      e.Secret,
		Period:      e.Period,
		Digits:      e.Digits,
	})
}

func info(index int, e models.TotpEntry) models.EntryInfo {
	period, digits := e.Period, e.Digits
	if period == 0 {
		period = otp.DefaultPeriod
	}
	if digits == 0 {
		digits = otp.DefaultDigits
	}
	return models.EntryInfo{
		Index:       index,
		ID:          e.ID,
		Name:        e.Name,
		Platform:    e.Platform,
		Description: e.Description,
		Rank:        e.Rank,
		Period:      period,
		Digits:      digits,
	}
}

func cloneEntries(in []models.TotpEntry) []models.TotpEntry {
	return append(make([]models.TotpEntry, 0, len(in)), in...)
}
