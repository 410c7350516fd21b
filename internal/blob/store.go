// Package blob stores opaque named files for the vault: the key descriptor,
// the validation token and the encrypted config. Every backend replaces a
// blob atomically, so a reader sees either the old or the new content.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("blob: not found")
	ErrInvalidName = errors.New("blob: invalid name")
)

// Store reads and atomically writes named blobs.
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// CleanName validates a blob name and returns it in canonical slash form.
// Every Store implementation applies it.
// Names are relative and must not escape the store root.
func CleanName(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes the store", ErrInvalidName, name)
	}
	return clean, nil
}
