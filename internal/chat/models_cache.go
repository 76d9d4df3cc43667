package chat

import (
	"sync"
	"time"

	"github.com/flemzord/rolechat/internal/provider"
)

// ModelsCache holds the last model listing for a fixed TTL.
type ModelsCache struct {
	mu       sync.RWMutex
	models   []provider.Model
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewModelsCache creates a cache whose entries expire after ttl.
func NewModelsCache(ttl time.Duration, now func() time.Time) *ModelsCache {
	if now == nil {
		now = time.Now
	}
	return &ModelsCache{ttl: ttl, now: now}
}

// Get returns the cached models, or nil when empty or expired.
func (c *ModelsCache) Get() []provider.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.models == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.models
}

// Set stores models and restarts the TTL.
func (c *ModelsCache) Set(models []provider.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = models
	c.cachedAt = c.now()
}

// Invalidate drops the cached listing.
func (c *ModelsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = nil
}
