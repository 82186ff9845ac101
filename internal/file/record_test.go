package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestNewStatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeAged(t, path, "0123456789")

	r := New(path)
	assert.True(t, r.Exists())
	assert.True(t, r.Stable())
	assert.Equal(t, int64(10), r.Size())
	assert.Equal(t, "a.txt", r.Name(dir))
	assert.Equal(t, path, r.Name(""))
}

func TestFreshFileIsUnstable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	r := New(path)
	assert.True(t, r.Exists())
	assert.False(t, r.Stable())
}

func TestMissingFile(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, r.Exists())
	assert.Error(t, r.Input())
	assert.ErrorIs(t, r.Write([]byte("x"), 0), ErrNotOpen)
}

func TestReadChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	writeAged(t, path, "0123456789")

	r := New(path)
	require.NoError(t, r.Input())
	defer r.Close()

	chunk, err := r.Read(4, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), chunk)
	assert.False(t, r.EOF())

	chunk, err = r.Read(4, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), chunk)
	assert.True(t, r.EOF())

	chunk, err = r.Read(4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("4567"), chunk)
	assert.False(t, r.EOF(), "a full read before the end is not EOF")

	chunk, err = r.Read(4, 10)
	require.NoError(t, err)
	assert.Empty(t, chunk)
	assert.True(t, r.EOF())
}

func TestOutputCreatesParentsAndWritesAtOffset(t *testing.T) {
	dir := t.TempDir()
	r := Join(dir, "inbox/sub/file.txt")
	require.NoError(t, r.Output())

	require.NoError(t, r.Write([]byte("world"), 6))
	require.NoError(t, r.Write([]byte("hello "), 0))
	r.Close()

	data, err := os.ReadFile(filepath.Join(dir, "inbox", "sub", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), r.Size())
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shrink.txt")
	writeAged(t, path, "a longer old body")

	r := New(path)
	assert.ErrorIs(t, r.Truncate(0), ErrNotOpen)
	require.NoError(t, r.Output())
	require.NoError(t, r.Write([]byte("new"), 0))
	require.NoError(t, r.Truncate(3))
	r.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLinkFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real", "movie.mp4")
	writeAged(t, target, "frames")
	link := filepath.Join(dir, "pub", "movie.mp4.ln")
	writeAged(t, link, target+"\n")

	r := New(link)
	assert.Equal(t, target, r.Link())
	assert.Equal(t, filepath.Join(dir, "pub", "movie.mp4"), r.Name(""))
	assert.Equal(t, int64(6), r.Size())

	require.NoError(t, r.Remove())
	_, err := os.Stat(link)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target)
	assert.NoError(t, err, "link target must survive")
}

func TestDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.txt")
	writeAged(t, path, "abc")

	digest, err := New(path).Digest()
	require.NoError(t, err)
	assert.Equal(t, "A9993E364706816ABA3E25717850C26C9CD0D89D", digest)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	writeAged(t, path, "x")

	r := New(path)
	require.NoError(t, r.Remove())
	assert.False(t, r.Exists())
	require.NoError(t, r.Remove(), "removing twice is not an error")
}
