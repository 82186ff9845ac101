// Package dir scans directory trees into immutable snapshots and turns the
// difference between two snapshots into create/delete patches.
package dir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/marmos91/filemq/internal/file"
	"github.com/marmos91/filemq/internal/logger"
)

// IgnoreFile holds gitignore-style patterns, read from a snapshot root.
const IgnoreFile = ".fmqignore"

// Snapshot is the state of a directory tree at scan time.
type Snapshot struct {
	root    string
	path    string
	files   []*file.Record
	subdirs []*Snapshot

	// Aggregates over the whole subtree.
	modTime time.Time
	size    int64
	count   int
}

// Matcher decides whether a root-relative path is excluded from a scan.
type Matcher interface {
	MatchesPath(string) bool
}

type loadOptions struct {
	matcher   Matcher
	noDefault bool
}

// Option configures Load.
type Option func(*loadOptions)

// WithMatcher excludes entries matched by m instead of reading IgnoreFile.
func WithMatcher(m Matcher) Option {
	return func(o *loadOptions) {
		o.matcher = m
		o.noDefault = true
	}
}

// WithPatterns excludes entries matching the given gitignore lines in
// addition to IgnoreFile.
func WithPatterns(lines ...string) Option {
	return func(o *loadOptions) {
		o.matcher = ignore.CompileIgnoreLines(lines...)
	}
}

// Load scans location recursively. Hidden entries are skipped. A missing
// location yields an error matching fs.ErrNotExist.
func Load(location string, opts ...Option) (*Snapshot, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", location, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load %s: not a directory", location)
	}

	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	matchers := make([]Matcher, 0, 2)
	if o.matcher != nil {
		matchers = append(matchers, o.matcher)
	}
	if !o.noDefault {
		if m, err := ignore.CompileIgnoreFile(filepath.Join(abs, IgnoreFile)); err == nil {
			matchers = append(matchers, m)
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Ignoring unreadable %s in %s: %v", IgnoreFile, abs, err)
		}
	}

	return scan(abs, abs, matchers), nil
}

func scan(root, path string, matchers []Matcher) *Snapshot {
	s := &Snapshot{root: root, path: path}

	entries, err := os.ReadDir(path)
	if err != nil {
		logger.Warn("Cannot read directory %s: %v", path, err)
		return s
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(path, entry.Name())
		rel := filepath.ToSlash(strings.TrimPrefix(full, root+string(filepath.Separator)))
		if entry.IsDir() {
			rel += "/"
		}
		if excluded(matchers, rel) {
			continue
		}

		if entry.IsDir() {
			s.subdirs = append(s.subdirs, scan(root, full, matchers))
		} else if entry.Type().IsRegular() || entry.Type()&os.ModeSymlink != 0 {
			s.files = append(s.files, file.New(full))
		}
	}

	for _, sub := range s.subdirs {
		if sub.modTime.After(s.modTime) {
			s.modTime = sub.modTime
		}
		s.size += sub.size
		s.count += sub.count
	}
	for _, f := range s.files {
		if f.ModTime().After(s.modTime) {
			s.modTime = f.ModTime()
		}
		s.size += f.Size()
		s.count++
	}
	return s
}

func excluded(matchers []Matcher, rel string) bool {
	for _, m := range matchers {
		if m.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// Path returns the absolute path of the scanned directory.
func (s *Snapshot) Path() string { return s.path }

// ModTime returns the most recent modification time in the subtree.
func (s *Snapshot) ModTime() time.Time { return s.modTime }

// Size returns the total size of all files in the subtree.
func (s *Snapshot) Size() int64 { return s.size }

// Count returns the number of files in the subtree.
func (s *Snapshot) Count() int { return s.count }

// Flatten returns every file in the subtree, ordered by root-relative name.
// A nil snapshot flattens to an empty list.
func (s *Snapshot) Flatten() []*file.Record {
	if s == nil {
		return nil
	}
	files := make([]*file.Record, 0, s.count)
	s.collect(&files)
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name(s.root) < files[j].Name(s.root)
	})
	return files
}

func (s *Snapshot) collect(files *[]*file.Record) {
	*files = append(*files, s.files...)
	for _, sub := range s.subdirs {
		sub.collect(files)
	}
}

// RelName returns the name of r relative to the snapshot root.
func (s *Snapshot) RelName(r *file.Record) string {
	return r.Name(s.root)
}

// Names lists the root-relative file names in flattened order.
func (s *Snapshot) Names() []string {
	files := s.Flatten()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name(s.root)
	}
	return names
}

// Remove deletes the directory. Without force it must already be empty.
func (s *Snapshot) Remove(force bool) error {
	if force {
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("remove %s: %w", s.path, err)
		}
		s.files, s.subdirs = nil, nil
		s.size, s.count = 0, 0
		return nil
	}
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("remove %s: %w", s.path, err)
	}
	return nil
}
