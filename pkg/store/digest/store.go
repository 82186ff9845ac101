// Package digest defines where directory digest caches are persisted.
//
// A digest cache maps file names, relative to a directory, to the uppercase
// hex SHA-1 of their content. The client keeps one cache per subscription
// inbox and sends it with RESYNC subscriptions so the server can skip files
// the client already holds.
package digest

import (
	"bufio"
	"bytes"
	"context"
	"sort"
	"strings"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store persists digest caches keyed by directory.
//
// Load returns an empty, non-nil map when no cache exists for dir. Save
// replaces the whole cache for dir.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	Load(ctx context.Context, dir string) (map[string]string, error)
	Save(ctx context.Context, dir string, entries map[string]string) error
	Close() error
}

// ============================================================================
// Serialization
// ============================================================================

// Encode renders entries as "name=DIGEST" lines in name order.
func Encode(entries map[string]string) []byte {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(entries[name])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Decode parses the output of Encode. Blank lines, comments and lines without
// '=' are skipped.
func Decode(data []byte) map[string]string {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		entries[name] = strings.TrimSpace(value)
	}
	return entries
}
