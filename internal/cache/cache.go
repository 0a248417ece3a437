package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// localTTL caps how long an entry stays in process memory, so that a
// delete on another instance is seen within this window.
const localTTL = 5 * time.Minute

// Remote is the shared second level (Redis or Memcached)
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache is a two-level JSON cache: ccache in front, an optional Remote behind
type Cache struct {
	local  *ccache.Cache[[]byte]
	remote Remote
}

// New creates a cache. remote may be nil for a process-local cache.
func New(maxSize int64, remote Remote) *Cache {
	return &Cache{
		local:  ccache.New(ccache.Configure[[]byte]().MaxSize(maxSize)),
		remote: remote,
	}
}

// GetJSON decodes the cached value for key into dst and reports a hit
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if item := c.local.Get(key); item != nil && !item.Expired() {
		if err := json.Unmarshal(item.Value(), dst); err == nil {
			return true
		}
		c.local.Delete(key)
	}

	if c.remote == nil {
		return false
	}

	data, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		log.Printf("[Cache] Remote get failed for %s (continuing without cache): %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("[Cache] Failed to unmarshal %s: %v", key, err)
		return false
	}

	c.local.Set(key, data, localTTL)
	return true
}

// SetJSON stores v under key in both levels
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Cache] Failed to marshal %s: %v", key, err)
		return
	}

	c.local.Set(key, data, minDuration(ttl, localTTL))

	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, data, ttl); err != nil {
		log.Printf("[Cache] Remote set failed for %s: %v", key, err)
	}
}

// Delete removes key from both levels
func (c *Cache) Delete(ctx context.Context, key string) {
	c.local.Delete(key)

	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		log.Printf("[Cache] Remote delete failed for %s: %v", key, err)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
