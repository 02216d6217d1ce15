package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no object exists at the requested key.
var ErrNotFound = errors.New("blob: object not found")

// Object is a stored blob plus the store-reported modification time.
// LastModified doubles as the generation timestamp for cached rollups.
type Object struct {
	Body         []byte
	LastModified time.Time
}

// Store defines the interface for durable object storage.
// Implementations: memory (testing), badger (production).
type Store interface {
	// Put writes body at key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte) error

	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// List returns all keys beginning with prefix, in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close cleanly shuts down the store.
	Close() error
}
