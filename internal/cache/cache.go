// Package cache holds live widget sessions for the REST API.
package cache

import (
	"sync"
	"time"

	"github.com/livetemplate/widgetlab/internal/runtime"
)

// Entry is a cached widget session.
type Entry struct {
	Widget    string
	Store     runtime.Store
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache defines the interface for session storage
type Cache interface {
	// Get returns the session and extends its lifetime by the cache TTL.
	Get(key string) (*Entry, bool)

	// Set stores a session. An existing session under key is closed.
	Set(key, widget string, store runtime.Store)

	// Invalidate removes and closes a session. Reports whether it existed.
	Invalidate(key string) bool

	// InvalidateAll removes and closes every session
	InvalidateAll()
}

// MemoryCache is an in-memory session cache with a sliding TTL.
// Stores are closed when they leave the cache for any reason.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
	done            chan struct{}
}

// NewMemoryCache creates a session cache whose idle entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	interval := time.Minute
	if ttl < interval {
		interval = ttl
	}
	return newMemoryCache(ttl, interval)
}

func newMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*Entry),
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		done:            make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a session and refreshes its expiry
func (c *MemoryCache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		return nil, false
	}
	if entry.IsExpired() {
		delete(c.entries, key)
		c.mu.Unlock()
		closeStore(entry)
		return nil, false
	}
	entry.ExpiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	return entry, true
}

// Set stores a session with the cache TTL
func (c *MemoryCache) Set(key, widget string, store runtime.Store) {
	entry := &Entry{
		Widget:    widget,
		Store:     store,
		ExpiresAt: time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	old := c.entries[key]
	c.entries[key] = entry
	c.mu.Unlock()

	if old != nil && old.Store != store {
		closeStore(old)
	}
}

// Invalidate removes a session from the cache
func (c *MemoryCache) Invalidate(key string) bool {
	c.mu.Lock()
	entry, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		closeStore(entry)
	}
	return ok
}

// InvalidateAll removes all sessions from the cache
func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	for _, entry := range old {
		closeStore(entry)
	}
}

// cleanupLoop periodically removes expired entries
func (c *MemoryCache) cleanupLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *MemoryCache) cleanup() {
	var expired []*Entry

	c.mu.Lock()
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired = append(expired, entry)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, entry := range expired {
		closeStore(entry)
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times. Sessions stay cached until InvalidateAll.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
	<-c.done
}

// Len returns the number of sessions in the cache
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func closeStore(e *Entry) {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}
