package dir

import (
	"context"
	"fmt"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/store/digest"
)

// Cache returns the digest of every file in s keyed by root-relative name.
// Known digests come from store; only names missing from it are hashed.
// Names no longer present are dropped and the result is saved back.
func (s *Snapshot) Cache(ctx context.Context, store digest.Store) (map[string]string, error) {
	cache, err := store.Load(ctx, s.path)
	if err != nil {
		logger.Warn("Rebuilding digest cache for %s: %v", s.path, err)
		cache = make(map[string]string)
	}

	present := make(map[string]struct{}, s.count)
	for _, rec := range s.Flatten() {
		name := rec.Name(s.root)
		present[name] = struct{}{}
		if _, ok := cache[name]; ok {
			continue
		}
		d, err := rec.Digest()
		if err != nil {
			logger.Debug("Skipping %s in digest cache: %v", name, err)
			continue
		}
		cache[name] = d
	}
	for name := range cache {
		if _, ok := present[name]; !ok {
			delete(cache, name)
		}
	}

	if err := store.Save(ctx, s.path, cache); err != nil {
		return cache, fmt.Errorf("save digest cache for %s: %w", s.path, err)
	}
	return cache, nil
}
