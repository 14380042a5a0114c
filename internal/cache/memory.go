package cache

import (
	"image"
	"strings"
	"sync"
	"time"
)

// Entry represents a cached item with expiration
type Entry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory TTL cache
type MemoryCache struct {
	items map[string]*Entry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*Entry),
		ttl:   ttl,
	}

	// Start cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &Entry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*Entry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, entry := range c.items {
			if entry.IsExpired() {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}

// ArtCache caches downloaded album art images keyed by (artist, title) so
// re-selecting a song does not re-download its cover.
type ArtCache struct {
	*MemoryCache
}

// NewArtCache creates a new album art cache
func NewArtCache() *ArtCache {
	return &ArtCache{
		MemoryCache: NewMemoryCache(30 * time.Minute),
	}
}

// ArtKey builds the cache key for a song's album art.
func ArtKey(artist, title string) string {
	return strings.ToLower(artist) + "|" + strings.ToLower(title)
}

// SetArt caches a decoded album art image
func (ac *ArtCache) SetArt(artist, title string, img image.Image) {
	ac.Set(ArtKey(artist, title), img)
}

// GetArt retrieves cached album art
func (ac *ArtCache) GetArt(artist, title string) (image.Image, bool) {
	value, exists := ac.Get(ArtKey(artist, title))
	if !exists {
		return nil, false
	}

	img, ok := value.(image.Image)
	return img, ok
}
