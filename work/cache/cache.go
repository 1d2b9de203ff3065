package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store is a thread-safe in-memory cache whose entries carry their insert
// timestamp; validity is decided per lookup against a caller-supplied TTL.
// Entries are never proactively evicted: the key space is the finite set of
// channel pages and identifiers, so retention within process lifetime is
// bounded. Concurrent writers racing on the same key are last-writer-wins,
// which is acceptable because re-resolving an identifier is idempotent.
type Store struct {
	entries *xsync.MapOf[string, entry]
}

// entry represents a single cached item with its payload and creation timestamp.
type entry struct {
	value     any
	timestamp time.Time
}

// NewStore creates an empty Store ready for immediate use.
func NewStore() *Store {
	return &Store{
		entries: xsync.NewMapOf[string, entry](),
	}
}

// Get retrieves a value by key.
//
// Behavior:
//   - Key present and now − stored timestamp < ttl → returns the value and true.
//   - Key missing or entry expired → returns nil and false.
func (s *Store) Get(key string, ttl time.Duration) (any, bool) {
	e, exists := s.entries.Load(key)
	if !exists || time.Since(e.timestamp) >= ttl {
		return nil, false
	}
	return e.value, true
}

// GetString retrieves a cached string value by key. Non-string payloads are
// treated as a miss.
func (s *Store) GetString(key string, ttl time.Duration) (string, bool) {
	v, ok := s.Get(key, ttl)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Set stores a value with the current timestamp, overwriting any prior entry.
func (s *Store) Set(key string, value any) {
	s.entries.Store(key, entry{
		value:     value,
		timestamp: time.Now(),
	})
}

// Clear drops all entries. Clearing is always explicit; there is no
// background sweep.
func (s *Store) Clear() {
	s.entries.Clear()
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	return s.entries.Size()
}
