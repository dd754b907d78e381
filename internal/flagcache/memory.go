package flagcache

import (
	"context"
	"sync"
)

// MemoryCache is the in-process fallback used when no redis address is
// configured, and in tests.
type MemoryCache struct {
	mutex sync.RWMutex
	flags map[string]bool
}

var _ FlagCache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty in-memory flag cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{flags: make(map[string]bool)}
}

// SetFlag writes the flag.
func (cache *MemoryCache) SetFlag(ctx context.Context, key string, value bool) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.flags[key] = value
	return nil
}

// GetFlag reads the flag.
func (cache *MemoryCache) GetFlag(ctx context.Context, key string) (bool, bool, error) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	value, found := cache.flags[key]
	return value, found, nil
}
