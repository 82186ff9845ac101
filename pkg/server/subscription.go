package server

import (
	"path"
	"strings"

	"github.com/marmos91/filemq/internal/dir"
)

// subscription is one client's interest in every virtual path under a
// prefix. cache maps path-qualified virtual names to the digest the client
// already holds.
type subscription struct {
	client handle
	path   string
	cache  map[string]string
}

func newSubscription(h handle, prefix string, cache map[string]string) *subscription {
	sub := &subscription{
		client: h,
		path:   cleanPath(prefix),
		cache:  make(map[string]string, len(cache)),
	}
	sub.remember(sub.path, cache)
	return sub
}

// remember adds cache entries, joining relative names with base.
func (sub *subscription) remember(base string, cache map[string]string) {
	for name, digest := range cache {
		sub.cache[qualify(base, name)] = digest
	}
}

func qualify(base, name string) string {
	if strings.HasPrefix(name, "/") {
		return cleanPath(name)
	}
	return path.Join(base, name)
}

func (sub *subscription) covers(virtual string) bool {
	return covers(sub.path, virtual)
}

// wants reports whether p must reach the client. A create whose digest the
// client already holds is skipped. Queued patches invalidate the cached
// digest, since the client's copy is about to change.
func (sub *subscription) wants(p *dir.Patch) bool {
	cached, ok := sub.cache[p.Virtual()]
	if !ok {
		return true
	}
	if p.Op() == dir.Create && cached != "" && strings.EqualFold(cached, p.Digest()) {
		return false
	}
	delete(sub.cache, p.Virtual())
	return true
}

// cleanPath returns p rooted at "/" with duplicate and trailing slashes
// removed.
func cleanPath(p string) string {
	return path.Join("/", p)
}

// covers reports whether name equals prefix or lies below it.
func covers(prefix, name string) bool {
	if prefix == "/" {
		return true
	}
	return name == prefix || strings.HasPrefix(name, prefix+"/")
}
