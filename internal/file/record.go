// Package file provides the file records and positioned chunk I/O used by
// directory snapshots, the server's chunk reader and the client's inbox
// writer.
package file

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LinkSuffix marks a file whose first line names the real file to publish.
const LinkSuffix = ".ln"

// StableAge is how long a file must stay unmodified before it is considered
// stable enough to distribute.
var StableAge = time.Second

// ErrNotOpen is returned by Read and Write on a record with no open handle.
var ErrNotOpen = errors.New("file: not open")

// Record describes one file on disk. A record can be opened for reading or
// writing; it is not safe for concurrent use.
type Record struct {
	// path is where bytes live; differs from name for link files.
	path string
	// name is the logical absolute name.
	name string
	link string

	modTime time.Time
	size    int64
	exists  bool
	stable  bool

	handle *os.File
	eof    bool
}

// New returns a record for path and stats it. A missing file is not an
// error; Exists reports false.
func New(path string) *Record {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	r := &Record{path: abs, name: abs}

	if strings.HasSuffix(abs, LinkSuffix) {
		if target, err := readLink(abs); err == nil && target != "" {
			r.link = target
			r.path = target
			r.name = strings.TrimSuffix(abs, LinkSuffix)
		}
	}

	r.Restat()
	return r
}

// Join returns a record for name under dir.
func Join(dir, name string) *Record {
	return New(filepath.Join(dir, filepath.FromSlash(name)))
}

func readLink(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Dup returns an unopened copy with freshly read properties.
func (r *Record) Dup() *Record {
	c := &Record{path: r.path, name: r.name, link: r.link}
	c.Restat()
	return c
}

// Restat refreshes size, mtime, existence and stability from disk.
func (r *Record) Restat() {
	info, err := os.Stat(r.path)
	if err != nil {
		r.exists = false
		return
	}
	r.exists = true
	r.size = info.Size()
	r.modTime = info.ModTime()
	r.stable = time.Since(r.modTime) > StableAge
}

// Name returns the logical name. With a non-empty prefix, the prefix and the
// following separator are removed and the result uses forward slashes.
func (r *Record) Name(prefix string) string {
	if prefix == "" {
		return r.name
	}
	if abs, err := filepath.Abs(prefix); err == nil {
		prefix = abs
	}
	if rel, ok := strings.CutPrefix(r.name, prefix); ok {
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		return filepath.ToSlash(rel)
	}
	return r.name
}

// Path returns where the bytes are stored.
func (r *Record) Path() string { return r.path }

// Link returns the link target, or "" for a regular file.
func (r *Record) Link() string { return r.link }

func (r *Record) ModTime() time.Time { return r.modTime }
func (r *Record) Size() int64        { return r.size }
func (r *Record) Exists() bool       { return r.exists }
func (r *Record) Stable() bool       { return r.stable }

// EOF reports whether the last Read reached the end of the file.
func (r *Record) EOF() bool { return r.eof }

// Remove deletes the file. For a link record only the link file goes.
func (r *Record) Remove() error {
	target := r.path
	if r.link != "" {
		target = r.name + LinkSuffix
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", target, err)
	}
	r.exists = false
	return nil
}

// Input opens the file for reading.
func (r *Record) Input() error {
	r.Close()
	f, err := os.Open(r.path)
	if err != nil {
		r.size = 0
		return fmt.Errorf("open %s for reading: %w", r.path, err)
	}
	if info, err := f.Stat(); err == nil {
		r.size = info.Size()
	}
	r.handle = f
	return nil
}

// Output opens the file for positioned writes, creating it and its parent
// directories. A link record is replaced by a regular file.
func (r *Record) Output() error {
	if r.link != "" {
		r.link = ""
		r.path = r.name
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", r.path, err)
	}
	r.Close()
	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", r.path, err)
	}
	r.handle = f
	return nil
}

// Read returns up to n bytes at offset. A result shorter than n, including
// an empty one, means the end of the file was reached.
func (r *Record) Read(n int, offset int64) ([]byte, error) {
	if r.handle == nil {
		return nil, ErrNotOpen
	}
	size := n
	if offset >= r.size {
		size = 0
	} else if remaining := r.size - offset; int64(size) > remaining {
		size = int(remaining)
	}

	buf := make([]byte, size)
	read, err := r.handle.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s at %d: %w", r.path, offset, err)
	}
	r.eof = read < n || n == 0
	return buf[:read], nil
}

// Write stores data at offset.
func (r *Record) Write(data []byte, offset int64) error {
	if r.handle == nil {
		return ErrNotOpen
	}
	if _, err := r.handle.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write %s at %d: %w", r.path, offset, err)
	}
	return nil
}

// Truncate cuts the open file to size.
func (r *Record) Truncate(size int64) error {
	if r.handle == nil {
		return ErrNotOpen
	}
	if err := r.handle.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", r.path, size, err)
	}
	return nil
}

// Close releases the handle, if any, and restats the file.
func (r *Record) Close() {
	if r.handle == nil {
		return
	}
	_ = r.handle.Close()
	r.handle = nil
	r.Restat()
}

// IsOpen reports whether the record holds a handle.
func (r *Record) IsOpen() bool { return r.handle != nil }

// Digest returns the SHA-1 of the file contents as uppercase hex.
func (r *Record) Digest() (string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", r.path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", r.path, err)
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}
