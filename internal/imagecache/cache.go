// Package imagecache is a size- and time-bounded read-through cache in front of
// the product image origin.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = time.Hour
	DefaultMaxBytes     = 80 << 20
	DefaultFetchTimeout = 10 * time.Second
)

// Fetcher retrieves raw image bytes from the origin. It must honour ctx.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id int64) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, id int64) ([]byte, error) {
	return f(ctx, id)
}

// Config bounds the cache. Zero fields take the package defaults.
type Config struct {
	TTL          time.Duration
	MaxBytes     int64
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

type entry struct {
	data       []byte
	size       int64
	insertedAt time.Time
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Entries        int    `json:"entries"`
	Bytes          int64  `json:"bytes"`
	MaxBytes       int64  `json:"max_bytes"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	Evictions      uint64 `json:"evictions"`
	Expirations    uint64 `json:"expirations"`
	OriginFailures uint64 `json:"origin_failures"`
}

// Cache resolves image ids to bytes, fetching from the origin on a miss.
//
// The index, the byte total and the recency order only change under mu. The
// origin fetch runs without the lock, so a slow origin never blocks hits or
// unrelated misses. Returned byte slices are shared and must not be modified.
type Cache struct {
	fetcher  Fetcher
	cfg      Config
	now      func() time.Time
	coalesce bool
	group    singleflight.Group

	registerer prometheus.Registerer

	mu     sync.Mutex
	lru    *simplelru.LRU[int64, *entry]
	size   int64
	closed bool
	stats  Stats
}

// New creates an empty cache in front of fetcher.
func New(fetcher Fetcher, cfg Config, opts ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, errors.New("imagecache: nil fetcher")
	}
	// Capacity is governed by bytes, not entry count, so the LRU itself never evicts.
	lru, err := simplelru.NewLRU[int64, *entry](math.MaxInt, nil)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		lru:     lru,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registerer != nil {
		if err := registerGauges(c.registerer, c); err != nil {
			return nil, fmt.Errorf("imagecache: register gauges: %w", err)
		}
	}
	return c, nil
}

// Resolve returns the image bytes for id. A live entry is served from memory
// and becomes the most recently used. Otherwise the origin is asked, and on
// success the image is admitted and least recently used entries are evicted
// until the byte budget holds again. A failed fetch changes nothing and is not
// remembered: the next call fetches again.
func (c *Cache) Resolve(ctx context.Context, id int64) ([]byte, error) {
	if id <= 0 {
		return nil, ErrInvalidImageID
	}

	data, ok, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}

	if !c.coalesce {
		return c.fetchAndAdmit(ctx, id)
	}
	// The shared fetch must not die with whichever caller happened to start it.
	v, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		return c.fetchAndAdmit(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) lookup(id int64) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}

	e, ok := c.lru.Peek(id)
	if !ok {
		c.recordMissLocked()
		return nil, false, nil
	}
	if c.now().Sub(e.insertedAt) >= c.cfg.TTL {
		c.lru.Remove(id)
		c.size -= e.size
		c.stats.Expirations++
		cacheExpirationsTotal.Inc()
		c.recordMissLocked()
		return nil, false, nil
	}

	c.lru.Get(id) // move to front
	c.stats.Hits++
	cacheHitsTotal.Inc()
	return e.data, true, nil
}

func (c *Cache) fetchAndAdmit(ctx context.Context, id int64) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	data, err := c.fetcher.Fetch(fetchCtx, id)
	if err != nil {
		// A caller that went away is not an origin failure.
		if !errors.Is(ctx.Err(), context.Canceled) {
			c.mu.Lock()
			c.stats.OriginFailures++
			c.mu.Unlock()
			originFailuresTotal.Inc()
		}
		return nil, &OriginError{ID: id, Err: err}
	}

	c.admit(id, data)
	return data, nil
}

// admit inserts first and evicts afterwards, so a single image larger than the
// whole budget is still kept; it only pushes out everything else.
func (c *Cache) admit(id int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	// Two concurrent misses on one id both land here; the later one replaces the earlier.
	if old, ok := c.lru.Peek(id); ok {
		c.lru.Remove(id)
		c.size -= old.size
	}

	e := &entry{data: data, size: int64(len(data)), insertedAt: c.now()}
	c.lru.Add(id, e)
	c.size += e.size

	for c.size > c.cfg.MaxBytes && c.lru.Len() > 1 {
		_, victim, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.size -= victim.size
		c.stats.Evictions++
		cacheEvictionsTotal.Inc()
	}
}

func (c *Cache) recordMissLocked() {
	c.stats.Misses++
	cacheMissesTotal.Inc()
}

// Contains reports whether id has a live entry, without touching recency.
func (c *Cache) Contains(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(id)
	return ok && c.now().Sub(e.insertedAt) < c.cfg.TTL
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	s.Bytes = c.size
	s.MaxBytes = c.cfg.MaxBytes
	return s
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// Close drops every entry. Later calls to Resolve fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.lru.Purge()
	c.size = 0
	return nil
}
