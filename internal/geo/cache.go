package geo

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedResolver memoizes country lookups of another resolver.
type CachedResolver struct {
	next  Resolver
	cache *ttlcache.Cache[int64, string]
}

func NewCachedResolver(next Resolver, ttl time.Duration, capacity uint64) *CachedResolver {
	return &CachedResolver{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[int64, string](ttl),
			ttlcache.WithCapacity[int64, string](capacity),
			ttlcache.WithDisableTouchOnHit[int64, string](),
		),
	}
}

func (c *CachedResolver) Country(ip int64) string {
	if item := c.cache.Get(ip); item != nil {
		return item.Value()
	}
	country := c.next.Country(ip)
	c.cache.Set(ip, country, ttlcache.DefaultTTL)
	return country
}

// Stats returns cache hits and misses since creation.
func (c *CachedResolver) Stats() (hits, misses uint64) {
	m := c.cache.Metrics()
	return m.Hits, m.Misses
}
