package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nickray/healthlake/pkg/blob"
)

// Store implements blob.Store using BadgerDB (LSM tree).
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool
}

// value layout: 8-byte big-endian unix-nano last-modified, then the body.
const headerSize = 8

// New creates a BadgerDB-backed object store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Sync batches and rollup blobs are small JSON objects; keep the
	// footprint modest rather than using Badger's server-class defaults.
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithNumMemtables(3).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Put writes body at key, stamping the store's last-modified time.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint64(value, uint64(s.now().UnixNano()))
	copy(value[headerSize:], body)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	return nil
}

// Get returns the object at key, or blob.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*blob.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var obj *blob.Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			if len(value) < headerSize {
				return fmt.Errorf("corrupt object %q: %d bytes", key, len(value))
			}
			body := make([]byte, len(value)-headerSize)
			copy(body, value[headerSize:])
			obj = &blob.Object{
				Body:         body,
				LastModified: time.Unix(0, int64(binary.BigEndian.Uint64(value))),
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return obj, nil
}

// List returns all keys beginning with prefix in ascending order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes the object at key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// Close shuts down the underlying BadgerDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB value log garbage collection with the given discard
// ratio. Returns badger.ErrNoRewrite when nothing needed collecting.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}
