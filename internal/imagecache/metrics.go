package imagecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_image_cache_hits_total",
		Help: "Image lookups served from memory.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_image_cache_misses_total",
		Help: "Image lookups that went to the origin, expired entries included.",
	})
	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_image_cache_evictions_total",
		Help: "Entries dropped to stay within the byte budget.",
	})
	cacheExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_image_cache_expirations_total",
		Help: "Entries dropped because their TTL elapsed.",
	})
	originFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_image_origin_failures_total",
		Help: "Origin fetches that failed or timed out.",
	})
)

// registerGauges exposes the size of c on reg. The gauges read c.Stats() at
// scrape time, so each cache reports only its own contents.
func registerGauges(reg prometheus.Registerer, c *Cache) error {
	bytes := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "catalog_image_cache_bytes",
		Help: "Bytes currently held by the image cache.",
	}, func() float64 { return float64(c.Stats().Bytes) })
	entries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "catalog_image_cache_entries",
		Help: "Images currently held by the image cache.",
	}, func() float64 { return float64(c.Stats().Entries) })

	if err := reg.Register(bytes); err != nil {
		return err
	}
	if err := reg.Register(entries); err != nil {
		reg.Unregister(bytes)
		return err
	}
	return nil
}
