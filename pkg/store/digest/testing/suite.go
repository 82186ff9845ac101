// Package testing holds a reusable contract test for digest.Store
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/filemq/pkg/store/digest"
)

// StoreTestSuite checks the digest.Store contract.
//
// Usage:
//
//	func TestMyDigestStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) digest.Store { return mystore.New() },
//	        Dir:      func(t *testing.T) string { return t.TempDir() },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh store for each test.
	NewStore func(t *testing.T) digest.Store

	// Dir returns a directory key to use. Defaults to t.TempDir().
	Dir func(t *testing.T) string
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Load_Missing", suite.testLoadMissing)
	t.Run("Save_Load", suite.testSaveLoad)
	t.Run("Save_Replaces", suite.testSaveReplaces)
	t.Run("Dirs_Isolated", suite.testDirsIsolated)
	t.Run("Load_ReturnsCopy", suite.testLoadReturnsCopy)
}

func (suite *StoreTestSuite) dir(t *testing.T) string {
	if suite.Dir != nil {
		return suite.Dir(t)
	}
	return t.TempDir()
}

func (suite *StoreTestSuite) store(t *testing.T) digest.Store {
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (suite *StoreTestSuite) testLoadMissing(t *testing.T) {
	s := suite.store(t)

	entries, err := s.Load(context.Background(), suite.dir(t))
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func (suite *StoreTestSuite) testSaveLoad(t *testing.T) {
	s := suite.store(t)
	dir := suite.dir(t)
	want := map[string]string{
		"a.txt":     "A9993E364706816ABA3E25717850C26C9CD0D89D",
		"sub/b.bin": "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709",
	}

	require.NoError(t, s.Save(context.Background(), dir, want))
	got, err := s.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func (suite *StoreTestSuite) testSaveReplaces(t *testing.T) {
	s := suite.store(t)
	dir := suite.dir(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, dir, map[string]string{"old": "1", "kept": "2"}))
	require.NoError(t, s.Save(ctx, dir, map[string]string{"kept": "3"}))

	got, err := s.Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kept": "3"}, got)
}

func (suite *StoreTestSuite) testDirsIsolated(t *testing.T) {
	s := suite.store(t)
	ctx := context.Background()
	one, two := suite.dir(t), suite.dir(t)

	require.NoError(t, s.Save(ctx, one, map[string]string{"x": "1"}))

	got, err := s.Load(ctx, two)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (suite *StoreTestSuite) testLoadReturnsCopy(t *testing.T) {
	s := suite.store(t)
	dir := suite.dir(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, dir, map[string]string{"x": "1"}))
	got, err := s.Load(ctx, dir)
	require.NoError(t, err)
	got["y"] = "2"

	again, err := s.Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1"}, again)
}
