package imagecache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly so tests can move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCoalescedMisses makes concurrent misses on the same id share one origin
// fetch. Off by default: every miss fetches on its own.
func WithCoalescedMisses(enabled bool) Option {
	return func(c *Cache) {
		c.coalesce = enabled
	}
}

// WithRegisterer publishes the cache's byte and entry gauges on reg. Without
// it the gauges are not exported. Each registerer takes at most one cache.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.registerer = reg
	}
}
