package certificate

import (
	"context"
	"time"

	"sealedrecord/internal/platform/redis"
)

const renderTTL = 24 * time.Hour

// RenderCache caches rendered certificate artifacts. The cache key is the
// certificate hash, so a stale entry is impossible: a different snapshot is
// a different hash.
type RenderCache struct {
	client *redis.Client
}

// NewRenderCache wraps client; a nil client yields a no-op cache.
func NewRenderCache(client *redis.Client) *RenderCache {
	return &RenderCache{client: client}
}

func (c *RenderCache) key(hash string) string {
	return "certificate:render:" + hash
}

// Get returns the cached artifact and whether it was present. Cache errors
// degrade to a miss.
func (c *RenderCache) Get(ctx context.Context, hash string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	rendered, err := c.client.Get(ctx, c.key(hash)).Result()
	if err != nil {
		return "", false
	}
	return rendered, true
}

// Set stores the rendered artifact. Failures are ignored; rendering is pure
// and will simply run again.
func (c *RenderCache) Set(ctx context.Context, hash, rendered string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, c.key(hash), rendered, renderTTL).Err()
}
