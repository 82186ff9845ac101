package memory

import (
	"context"
	"maps"
	"sync"
)

// MemoryDigestStore keeps digest caches in a map. Caches are lost when the
// process exits, so every RESYNC after a restart transfers everything.
type MemoryDigestStore struct {
	mu     sync.RWMutex
	caches map[string]map[string]string
}

// NewMemoryDigestStore returns an empty store.
func NewMemoryDigestStore() *MemoryDigestStore {
	return &MemoryDigestStore{caches: make(map[string]map[string]string)}
}

func (s *MemoryDigestStore) Load(ctx context.Context, dir string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make(map[string]string, len(s.caches[dir]))
	maps.Copy(entries, s.caches[dir])
	return entries, nil
}

func (s *MemoryDigestStore) Save(ctx context.Context, dir string, entries map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.caches[dir] = maps.Clone(entries)
	return nil
}

func (s *MemoryDigestStore) Close() error { return nil }
