package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nickray/healthlake/pkg/blob"
)

type entry struct {
	body         []byte
	lastModified time.Time
}

// Store keeps objects in memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	objects map[string]entry
	mu      sync.RWMutex

	// Now supplies object modification times; tests override it to pin
	// a cache entry's generation timestamp.
	Now func() time.Time
}

// New creates an in-memory object store.
func New() *Store {
	return &Store{
		objects: make(map[string]entry),
		Now:     time.Now,
	}
}

// Put writes body at key.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[key] = entry{body: stored, lastModified: s.Now()}
	return nil
}

// Get returns the object at key, or blob.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*blob.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}

	body := make([]byte, len(e.body))
	copy(body, e.body)
	return &blob.Object{Body: body, LastModified: e.lastModified}, nil
}

// List returns all keys beginning with prefix in ascending order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Close is a no-op for memory storage.
func (s *Store) Close() error {
	return nil
}

// SetLastModified overrides an object's modification time. Test hook for
// exercising the cache freshness policy.
func (s *Store) SetLastModified(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.objects[key]; ok {
		e.lastModified = t
		s.objects[key] = e
	}
}
