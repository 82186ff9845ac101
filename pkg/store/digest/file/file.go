// Package file stores each digest cache as a ".cache" file inside the
// directory it describes.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/marmos91/filemq/pkg/store/digest"
)

const (
	// DefaultName is the cache file name. Hidden, so directory scans skip it.
	DefaultName = ".cache"

	lockSuffix = ".lock"
	lockRetry  = 20 * time.Millisecond
)

// FileDigestStore reads and writes "name=DIGEST" files. Access to each cache
// file is serialized with an advisory lock next to it, so two processes
// sharing an inbox do not interleave writes.
type FileDigestStore struct {
	name string
}

// NewFileDigestStore returns a store using name as the cache file name. An
// empty name selects DefaultName.
func NewFileDigestStore(name string) *FileDigestStore {
	if name == "" {
		name = DefaultName
	}
	return &FileDigestStore{name: name}
}

func (s *FileDigestStore) path(dir string) string {
	return filepath.Join(dir, s.name)
}

func (s *FileDigestStore) lock(ctx context.Context, dir string) (*flock.Flock, error) {
	lock := flock.New(s.path(dir) + lockSuffix)
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock digest cache in %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock digest cache in %s: busy", dir)
	}
	return lock, nil
}

// Load reads the cache for dir. A missing directory or cache file yields an
// empty map.
func (s *FileDigestStore) Load(ctx context.Context, dir string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(dir))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read digest cache: %w", err)
	}
	return digest.Decode(data), nil
}

// Save rewrites the cache for dir, creating dir when needed.
func (s *FileDigestStore) Save(ctx context.Context, dir string, entries map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	lock, err := s.lock(ctx, dir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	tmp := s.path(dir) + ".tmp"
	if err := os.WriteFile(tmp, digest.Encode(entries), 0644); err != nil {
		return fmt.Errorf("write digest cache: %w", err)
	}
	if err := os.Rename(tmp, s.path(dir)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace digest cache: %w", err)
	}
	return nil
}

func (s *FileDigestStore) Close() error { return nil }
