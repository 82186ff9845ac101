package server

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/logger"
)

// mount publishes one directory tree under an alias.
type mount struct {
	location string
	alias    string
	snapshot *dir.Snapshot
	subs     []*subscription
}

// newMount takes the initial snapshot of location. Files present now are
// only sent to subscribers that ask for a resync. A missing directory is
// published empty and picked up once it appears.
func newMount(location, alias string) (*mount, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	m := &mount{location: abs, alias: cleanPath(alias)}

	snap, err := dir.Load(abs)
	switch {
	case err == nil:
		m.snapshot = snap
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("Publishing %s as %s: directory does not exist yet", abs, m.alias)
	default:
		return nil, err
	}
	return m, nil
}

// rescan replaces the snapshot and returns the patches between the two.
func (m *mount) rescan() ([]*dir.Patch, error) {
	snap, err := dir.Load(m.location)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	patches := dir.Diff(m.snapshot, snap, m.alias)
	m.snapshot = snap
	return patches, nil
}

// resync returns a create for every stable file under prefix.
func (m *mount) resync(prefix string) []*dir.Patch {
	var patches []*dir.Patch
	for _, p := range dir.Resync(m.snapshot, m.alias) {
		if covers(prefix, p.Virtual()) {
			patches = append(patches, p)
		}
	}
	return patches
}

// subscribe records a client's interest in prefix. An existing subscription
// of the same client that already covers prefix absorbs the request; ones
// that prefix covers are replaced. The effective subscription is returned.
func (m *mount) subscribe(h handle, prefix string, cache map[string]string) *subscription {
	prefix = cleanPath(prefix)

	kept := m.subs[:0]
	var covering *subscription
	for _, sub := range m.subs {
		if sub.client == h {
			if covering == nil && covers(sub.path, prefix) {
				covering = sub
			} else if covers(prefix, sub.path) {
				continue
			}
		}
		kept = append(kept, sub)
	}
	clear(m.subs[len(kept):])
	m.subs = kept

	if covering != nil {
		covering.remember(prefix, cache)
		return covering
	}

	sub := newSubscription(h, prefix, cache)
	m.subs = append(m.subs, sub)
	return sub
}

// purge drops every subscription owned by h.
func (m *mount) purge(h handle) {
	kept := m.subs[:0]
	for _, sub := range m.subs {
		if sub.client != h {
			kept = append(kept, sub)
		}
	}
	clear(m.subs[len(kept):])
	m.subs = kept
}
