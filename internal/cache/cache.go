// Package cache provides a short-TTL cache for semantic search results.
//
// Caching is strictly best-effort: a miss (or a disabled cache) only means a
// live search. The interface exists so a no-op implementation can stand in
// when caching is disabled, and so a networked cache could be dropped in
// without touching the ranker.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/acrell/mnemo/internal/semantic"
)

// Default TTLs: search results favor freshness, key memories change rarely.
const (
	SearchTTL      = 5 * time.Minute
	KeyMemoriesTTL = 10 * time.Minute
)

// Cache stores search result lists keyed by (user, query, scope).
type Cache interface {
	GetSearch(userID, query, scope string) ([]semantic.Memory, bool)
	SetSearch(userID, query, scope string, results []semantic.Memory)
	GetKeyMemories(userID string) ([]semantic.Memory, bool)
	SetKeyMemories(userID string, results []semantic.Memory)
	// InvalidateForUser drops all cached entries for a user. Called whenever
	// new memories are written for that user. Returns entries removed.
	InvalidateForUser(userID string) int
}

type entry struct {
	results   []semantic.Memory
	userID    string
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]entry
	searchTTL time.Duration
	keyTTL    time.Duration
}

// NewMemoryCache creates a cache with the given TTLs; zero values take the
// package defaults.
func NewMemoryCache(searchTTL, keyTTL time.Duration) *MemoryCache {
	if searchTTL <= 0 {
		searchTTL = SearchTTL
	}
	if keyTTL <= 0 {
		keyTTL = KeyMemoriesTTL
	}
	return &MemoryCache{
		entries:   make(map[string]entry),
		searchTTL: searchTTL,
		keyTTL:    keyTTL,
	}
}

// hashQuery keeps keys bounded regardless of query length.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}

func searchKey(userID, query, scope string) string {
	return "search:" + userID + ":" + scope + ":" + hashQuery(query)
}

func keyMemoriesKey(userID string) string {
	return "key:" + userID
}

func (c *MemoryCache) get(key string) ([]semantic.Memory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.results, true
}

func (c *MemoryCache) set(key, userID string, results []semantic.Memory, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		results:   results,
		userID:    userID,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *MemoryCache) GetSearch(userID, query, scope string) ([]semantic.Memory, bool) {
	return c.get(searchKey(userID, query, scope))
}

func (c *MemoryCache) SetSearch(userID, query, scope string, results []semantic.Memory) {
	c.set(searchKey(userID, query, scope), userID, results, c.searchTTL)
}

func (c *MemoryCache) GetKeyMemories(userID string) ([]semantic.Memory, bool) {
	return c.get(keyMemoriesKey(userID))
}

func (c *MemoryCache) SetKeyMemories(userID string, results []semantic.Memory) {
	c.set(keyMemoriesKey(userID), userID, results, c.keyTTL)
}

func (c *MemoryCache) InvalidateForUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if e.userID == userID {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Noop is the disabled-cache implementation. Every get misses.
type Noop struct{}

func (Noop) GetSearch(string, string, string) ([]semantic.Memory, bool) { return nil, false }
func (Noop) SetSearch(string, string, string, []semantic.Memory)        {}
func (Noop) GetKeyMemories(string) ([]semantic.Memory, bool)            { return nil, false }
func (Noop) SetKeyMemories(string, []semantic.Memory)                   {}
func (Noop) InvalidateForUser(string) int                               { return 0 }
