package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/atinyakov/GophOTP/internal/blob"
	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/service"
	"github.com/atinyakov/GophOTP/internal/vault"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// LocalOptions configures OpenLocal.
type LocalOptions struct {
	// Dir holds key.json, validation.json and config.json.
	Dir string
	// Algorithm is used only when Dir holds no store yet.
	Algorithm vault.Algorithm
	Logger    *zap.Logger
}

// LocalKeeper runs the registry in-process over a local directory. Every
// mutation is saved before it returns; a failed save is reverted.
type LocalKeeper struct {
	reg *service.Registry
	// mu keeps mutate+save pairs from interleaving.
	mu sync.Mutex
}

// OpenLocal unlocks the store in opts.Dir with password, creating it on
// first use.
func OpenLocal(ctx context.Context, opts LocalOptions, password string) (*LocalKeeper, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := blob.NewLocalStore(opts.Dir, blob.WithLocalLogger(log))

	vopts := []vault.Option{vault.WithLogger(log)}
	if opts.Algorithm != "" {
		vopts = append(vopts, vault.WithAlgorithm(opts.Algorithm))
	}
	reg := service.NewRegistry(vault.New(store, vopts...), service.WithLogger(log))
	if err := reg.Init(ctx, password); err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Dir, err)
	}
	return NewLocalKeeper(reg), nil
}

// NewLocalKeeper wraps an unlocked registry.
func NewLocalKeeper(reg *service.Registry) *LocalKeeper {
	return &LocalKeeper{reg: reg}
}

func (k *LocalKeeper) List(ctx context.Context) ([]models.EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return k.reg.List(), nil
}

func (k *LocalKeeper) Add(ctx context.Context, req models.NewEntryRequest) (models.EntryInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		info models.EntryInfo
		err  error
	)
	if req.URI != "" {
		info, err = k.reg.Import(req.URI)
	} else {
		info, err = k.reg.Add(entryFromRequest(req))
	}
	if err != nil {
		return models.EntryInfo{}, err
	}
	if err := k.save(ctx); err != nil {
		return models.EntryInfo{}, err
	}
	return info, nil
}

func (k *LocalKeeper) Remove(ctx context.Context, ref service.Ref) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.reg.RemoveRef(ref); err != nil {
		return err
	}
	return k.save(ctx)
}

func (k *LocalKeeper) Code(_ context.Context, ref service.Ref) (models.Code, error) {
	return k.reg.GenerateRef(ref)
}

func (k *LocalKeeper) Verify(_ context.Context, ref service.Ref, code string, skew int) (bool, error) {
	return k.reg.VerifyRef(ref, code, skew)
}

func (k *LocalKeeper) QR(_ context.Context, ref service.Ref) ([]byte, error) {
	uri, err := k.reg.KeyURIRef(ref)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(uri, qrcode.Medium, qrSize)
}

// Close locks the registry and zeroes the key.
func (k *LocalKeeper) Close() error {
	k.reg.Close()
	return nil
}

func (k *LocalKeeper) save(ctx context.Context) error {
	if err := k.reg.Save(ctx); err != nil {
		k.reg.Revert()
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
