// Package badger keeps digest caches for many directories in one BadgerDB
// database, one key per directory.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/filemq/pkg/store/digest"
)

// keyPrefix namespaces digest entries inside the database.
const keyPrefix = "digest:"

// BadgerDigestStore persists digest caches in BadgerDB.
//
// Each directory maps to a single value holding its encoded cache, so Load
// and Save are one point read and one point write.
type BadgerDigestStore struct {
	db *badger.DB
}

// BadgerDigestStoreConfig configures the store.
type BadgerDigestStoreConfig struct {
	// DBPath is the database directory.
	DBPath string

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool
}

// NewBadgerDigestStore opens (or creates) the database.
func NewBadgerDigestStore(ctx context.Context, config BadgerDigestStoreConfig) (*BadgerDigestStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger digest store: db path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}
	return &BadgerDigestStore{db: db}, nil
}

func key(dir string) []byte {
	return []byte(keyPrefix + dir)
}

func (s *BadgerDigestStore) Load(ctx context.Context, dir string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(dir))
		if errors.Is(err, badger.ErrKeyNotFound) {
			entries = map[string]string{}
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entries = digest.Decode(val)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load digest cache for %s: %w", dir, err)
	}
	return entries, nil
}

func (s *BadgerDigestStore) Save(ctx context.Context, dir string, entries map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(dir), digest.Encode(entries))
	})
	if err != nil {
		return fmt.Errorf("save digest cache for %s: %w", dir, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *BadgerDigestStore) Close() error {
	return s.db.Close()
}
