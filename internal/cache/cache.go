// Package cache provides a read-through cache for raw marketplace responses.
//
// Entries are keyed by (category, item, platform, language) and expire after a
// per-category TTL. A Cache layers an optional in-process LRU over a persistent
// Store (a directory of JSON files or a SQLite database).
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Category groups cache entries that share a TTL.
type Category string

const (
	CategoryItems      Category = "items"      // Item listing
	CategoryItem       Category = "item"       // Item detail with set components
	CategoryStatistics Category = "statistics" // Closed statistics
	CategoryOrders     Category = "orders"     // Visible sell orders
)

// Key identifies a cached response.
type Key struct {
	Category Category
	Item     string
	Platform string
	Language string
}

// String returns the canonical storage key.
func (k Key) String() string {
	return strings.Join([]string{string(k.Category), k.Platform, k.Language, k.Item}, ":")
}

// Entry is a stored value with its write time.
type Entry struct {
	Key      string          `json:"key"`
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

// Store persists entries. Implementations are single-writer.
type Store interface {
	// Load returns the entry for key. A missing entry is (Entry{}, false, nil).
	Load(key string) (Entry, bool, error)
	Save(entry Entry) error
	Clear() error
	Stats() (StoreStats, error)
	Close() error
}

// StoreStats describes the persistent store contents.
type StoreStats struct {
	Backend    string
	Location   string
	Entries    int
	TotalBytes int64
}

// Options configures a Cache.
type Options struct {
	// TTLs per category. A missing or non-positive TTL disables caching for that category.
	TTLs map[Category]time.Duration

	// MemoryEntries sizes the in-process LRU (0 disables it).
	MemoryEntries int

	Logger *slog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Stats contains hit/miss counters for the current process.
type Stats struct {
	Hits    int
	Misses  int
	Expired int
	Writes  int
}

// Cache is a TTL-aware read-through cache.
type Cache struct {
	store  Store
	ttls   map[Category]time.Duration
	mem    *lru.Cache
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a cache backed by store.
func New(store Store, opts Options) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		store:  store,
		ttls:   make(map[Category]time.Duration, len(opts.TTLs)),
		logger: opts.Logger,
		now:    opts.Now,
	}
	for cat, ttl := range opts.TTLs {
		c.ttls[cat] = ttl
	}

	if opts.MemoryEntries > 0 {
		mem, err := lru.New(opts.MemoryEntries)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		c.mem = mem
	}

	return c, nil
}

// Get decodes the cached value for key into v. It reports false on a miss,
// an expired entry or an undecodable entry.
func (c *Cache) Get(key Key, v any) bool {
	ttl := c.ttls[key.Category]
	if ttl <= 0 {
		return false
	}

	k := key.String()
	entry, ok := c.lookup(k)
	if !ok {
		c.count(func(s *Stats) { s.Misses++ })
		return false
	}

	if c.now().Sub(entry.StoredAt) > ttl {
		if c.mem != nil {
			c.mem.Remove(k)
		}
		c.count(func(s *Stats) { s.Expired++; s.Misses++ })
		return false
	}

	if err := json.Unmarshal(entry.Data, v); err != nil {
		c.logger.Debug("Discarding undecodable cache entry", "key", k, "error", err)
		c.count(func(s *Stats) { s.Misses++ })
		return false
	}

	c.count(func(s *Stats) { s.Hits++ })
	return true
}

// Put stores v under key. Categories without a TTL are not stored.
func (c *Cache) Put(key Key, v any) error {
	if c.ttls[key.Category] <= 0 {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	entry := Entry{
		Key:      key.String(),
		StoredAt: c.now(),
		Data:     data,
	}

	if c.mem != nil {
		c.mem.Add(entry.Key, entry)
	}
	if err := c.store.Save(entry); err != nil {
		return fmt.Errorf("save cache entry %s: %w", entry.Key, err)
	}

	c.count(func(s *Stats) { s.Writes++ })
	return nil
}

// Clear removes every entry from memory and from the store.
func (c *Cache) Clear() error {
	if c.mem != nil {
		c.mem.Purge()
	}
	return c.store.Clear()
}

// Stats returns the hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// StoreStats returns statistics about the persistent store.
func (c *Cache) StoreStats() (StoreStats, error) {
	return c.store.Stats()
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// lookup checks memory first, then the store. Store read errors count as misses.
func (c *Cache) lookup(k string) (Entry, bool) {
	if c.mem != nil {
		if v, ok := c.mem.Get(k); ok {
			return v.(Entry), true
		}
	}

	entry, ok, err := c.store.Load(k)
	if err != nil {
		c.logger.Debug("Cache read failed", "key", k, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	if c.mem != nil {
		c.mem.Add(k, entry)
	}
	return entry, true
}

func (c *Cache) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// OpenStore opens the persistent store for backend ("file" or "sqlite") inside dir.
func OpenStore(backend, dir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dir)
	case "sqlite":
		return OpenSQLiteStore(filepath.Join(dir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
