// Package querycache implements the query-template cache (C3): a per-database mapping
// from integer query_ref to the SQL template and routing metadata the Lead queue loads
// during bootstrap.
package querycache

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Entry is one query-template cache entry, loaded verbatim from a bootstrap result row.
type Entry struct {
	QueryRef       int
	QueryType      int
	SQLTemplate    string
	Description    string
	QueueClass     string
	TimeoutSeconds int
}

// Cache is a query-template cache for one database. Entries are append-mostly during
// bootstrap and read-only afterward: once Freeze is called, Add always fails, and
// Lookup never takes a lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]Entry
	frozen  atomic.Bool
}

// Create returns an empty Cache ready to accept entries.
func Create() *Cache {
	return &Cache{entries: make(map[int]Entry)}
}

// Add inserts entry, keyed by entry.QueryRef. It returns false without modifying the
// cache if the cache is frozen or already carries an entry for that query_ref;
// duplicate query_ref on insert is rejected, not overwritten.
func (c *Cache) Add(entry Entry) bool {
	if c.frozen.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.QueryRef]; exists {
		return false
	}

	c.entries[entry.QueryRef] = entry

	return true
}

// Lookup returns the entry for queryRef, if any. Once the cache is frozen it reads the
// map without locking.
func (c *Cache) Lookup(queryRef int) (Entry, bool) {
	if c.frozen.Load() {
		entry, ok := c.entries[queryRef]

		return entry, ok
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[queryRef]

	return entry, ok
}

// EntryCount returns the number of entries currently in the cache.
func (c *Cache) EntryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Freeze makes the cache read-only. Idempotent; once frozen a Cache never unfreezes.
// Callers may rely on Lookup being safe for concurrent use without further
// synchronization once Freeze has returned, per the bootstrap_completed handoff.
func (c *Cache) Freeze() {
	c.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (c *Cache) Frozen() bool {
	return c.frozen.Load()
}

// Destroy releases the cache's entries. The Cache must not be used afterward.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
}

// ErrDuplicateRef is returned by AddStrict (but never by Add, which signals the same
// condition via its bool return) when a caller wants the failure surfaced as an error
// to log, per spec.md's "the second insertion is rejected and logged" requirement.
var ErrDuplicateRef = errors.New("duplicate query_ref")

// AddStrict is Add, but returns ErrDuplicateRef instead of false so that callers which
// want to log the rejection (as the bootstrap loader does) don't need a separate check.
func (c *Cache) AddStrict(entry Entry) error {
	if c.Add(entry) {
		return nil
	}

	if c.frozen.Load() {
		return errors.New("query-template cache is frozen")
	}

	return errors.Wrapf(ErrDuplicateRef, "query_ref %d", entry.QueryRef)
}
