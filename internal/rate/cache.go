package rate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a cached exchange-rate observation.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Fresh reports whether the quote is still usable at the given instant.
func (q Quote) Fresh(now time.Time, ttl time.Duration) bool {
	return !q.Rate.IsZero() && q.FetchedAt.Add(ttl).After(now)
}

// Cache stores the most recent successful quote across requests. Readers and
// writers may be concurrent; implementations must never expose a partially
// written quote.
type Cache interface {
	Get() (Quote, bool)
	Put(q Quote) error
}

// FileCache keeps a quote in memory and mirrors it to a JSON file so the
// cache survives restarts. Writes go to a temp file followed by a single
// atomic rename.
type FileCache struct {
	path string

	mu     sync.RWMutex
	quote  Quote
	loaded bool
}

// NewFileCache builds a cache persisted at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Get returns the cached quote, falling back to the persisted record when the
// in-memory copy has not been populated yet.
func (c *FileCache) Get() (Quote, bool) {
	c.mu.RLock()
	if c.loaded {
		q := c.quote
		c.mu.RUnlock()
		return q, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.quote, true
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return Quote{}, false
	}

	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil || q.Rate.Sign() <= 0 || q.FetchedAt.IsZero() {
		return Quote{}, false
	}

	c.quote = q
	c.loaded = true
	return q, true
}

// Put replaces the cached quote in memory and on disk.
func (c *FileCache) Put(q Quote) error {
	c.mu.Lock()
	c.quote = q
	c.loaded = true
	c.mu.Unlock()

	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// MemoryCache is a process-local Cache without persistence, used by tests and
// by deployments that prefer a cold cache per process.
type MemoryCache struct {
	mu    sync.RWMutex
	quote Quote
	set   bool
}

// NewMemoryCache builds an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached quote, if any.
func (c *MemoryCache) Get() (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quote, c.set
}

// Put replaces the cached quote.
func (c *MemoryCache) Put(q Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote = q
	c.set = true
	return nil
}

var (
	_ Cache = (*FileCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
