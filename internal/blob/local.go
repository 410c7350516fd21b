package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// LocalStore keeps blobs as files under a base directory.
type LocalStore struct {
	dir    string
	logger *zap.Logger
	// rename is os.Rename; tests swap it to simulate a crash before commit.
	rename func(oldpath, newpath string) error
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithLocalLogger sets the logger used for write diagnostics.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(s *LocalStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLocalStore returns a store rooted at dir. The directory is created with
// owner-only permissions on first write.
func NewLocalStore(dir string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		dir:    dir,
		logger: zap.NewNop(),
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the base directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// Read returns the content of name, or ErrNotFound.
func (s *LocalStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces name with data. The content goes to a temp file in the same
// directory which is synced and then renamed over the target; on any failure
// before the rename the temp file is removed and the old file is untouched.
func (s *LocalStore) Write(ctx context.Context, name string, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create dir for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.logger.Warn("failed to remove temp file", zap.String("file", tmpName), zap.Error(rmErr))
			}
		}
	}()

	if err = tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", name, err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err = s.rename(tmpName, p); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	s.logger.Debug("blob written", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}
