// Package client provides the backends of the gophotp CLI: LocalKeeper owns
// the encrypted files on disk and RemoteKeeper talks to a gophotp server
// over mutual TLS.
package client

import (
	"context"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/service"
)

// qrSize is the edge length of rendered QR codes in pixels.
const qrSize = 256

// Keeper is the set of operations the CLI runs against a registry.
type Keeper interface {
	List(ctx context.Context) ([]models.EntryInfo, error)
	// Add stores a new entry. When req.URI is set the entry is imported
	// from the otpauth URI and the other fields are ignored.
	Add(ctx context.Context, req models.NewEntryRequest) (models.EntryInfo, error)
	Remove(ctx context.Context, ref service.Ref) error
	Code(ctx context.Context, ref service.Ref) (models.Code, error)
	Verify(ctx context.Context, ref service.Ref, code string, skew int) (bool, error)
	// QR returns a PNG of the entry's otpauth URI.
	QR(ctx context.Context, ref service.Ref) ([]byte, error)
	Close() error
}

func entryFromRequest(req models.NewEntryRequest) models.TotpEntry {
	return models.TotpEntry{
		Name:        req.Name,
		Platform:    req.Platform,
		Description: req.Description,
		Rank:        req.Rank,
		Secret:      req.Secret,
		Period:      req.Period,
		Digits:      req.Digits,
	}
}
