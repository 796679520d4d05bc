package geospatial

import (
	"math"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// DefaultMaxEntries bounds a DistanceCache unless configured otherwise.
const DefaultMaxEntries = 1000

// keyPrecision is the number of decimals kept when building cache keys.
const keyPrecision = 6

// EvictionPolicy selects how a full DistanceCache makes room.
type EvictionPolicy string

const (
	// EvictClearAll empties the whole cache once it is full, then inserts.
	EvictClearAll EvictionPolicy = "clear"
	// EvictLRU drops the least recently used entry.
	EvictLRU EvictionPolicy = "lru"
)

// ParseEvictionPolicy maps a config string to a policy, defaulting to EvictClearAll.
func ParseEvictionPolicy(s string) EvictionPolicy {
	if strings.EqualFold(s, string(EvictLRU)) {
		return EvictLRU
	}
	return EvictClearAll
}

// DistanceCache memoizes great-circle distances keyed by the rounded coordinate pair.
// Keys are order-sensitive: (a,b) and (b,a) are stored separately.
type DistanceCache struct {
	mu         sync.Mutex
	maxEntries int
	policy     EvictionPolicy
	entries    map[string]float64
	lru        *lru.Cache[string, float64]

	hits, misses, clears prometheus.Counter
}

// CacheOption configures a DistanceCache.
type CacheOption func(*DistanceCache)

// WithMaxEntries sets the entry bound.
func WithMaxEntries(n int) CacheOption {
	return func(c *DistanceCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithEvictionPolicy sets the eviction policy.
func WithEvictionPolicy(p EvictionPolicy) CacheOption {
	return func(c *DistanceCache) {
		c.policy = p
	}
}

// WithCounters reports hits, misses and full clears to the given counters. Nil counters are skipped.
func WithCounters(hits, misses, clears prometheus.Counter) CacheOption {
	return func(c *DistanceCache) {
		c.hits, c.misses, c.clears = hits, misses, clears
	}
}

// NewDistanceCache creates an empty cache.
func NewDistanceCache(opts ...CacheOption) *DistanceCache {
	c := &DistanceCache{
		maxEntries: DefaultMaxEntries,
		policy:     EvictClearAll,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.policy == EvictLRU {
		// lru.New only fails for a non-positive size, which WithMaxEntries rules out.
		c.lru, _ = lru.New[string, float64](c.maxEntries)
	} else {
		c.entries = make(map[string]float64, c.maxEntries)
	}
	return c
}

// DistanceKm returns the haversine distance in kilometers between a and b,
// computing and storing it on first request.
func (c *DistanceCache) DistanceKm(a, b domain.Coordinate) float64 {
	a, b = roundCoordinate(a), roundCoordinate(b)
	key := cacheKey(a, b)

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.lookup(key); ok {
		inc(c.hits)
		return d
	}
	inc(c.misses)

	d := HaversineKm(a, b)
	c.store(key, d)
	return d
}

// Len returns the number of cached entries.
func (c *DistanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		return c.lru.Len()
	}
	return len(c.entries)
}

// Clear drops every entry.
func (c *DistanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		c.lru.Purge()
		return
	}
	clear(c.entries)
}

func (c *DistanceCache) lookup(key string) (float64, bool) {
	if c.lru != nil {
		return c.lru.Get(key)
	}
	d, ok := c.entries[key]
	return d, ok
}

func (c *DistanceCache) store(key string, d float64) {
	if c.lru != nil {
		c.lru.Add(key, d)
		return
	}
	if len(c.entries) >= c.maxEntries {
		clear(c.entries)
		inc(c.clears)
	}
	c.entries[key] = d
}

func roundCoordinate(c domain.Coordinate) domain.Coordinate {
	return domain.Coordinate{Latitude: round6(c.Latitude), Longitude: round6(c.Longitude)}
}

func round6(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}

func cacheKey(a, b domain.Coordinate) string {
	var sb strings.Builder
	for i, v := range [4]float64{a.Latitude, a.Longitude, b.Latitude, b.Longitude} {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', keyPrecision, 64))
	}
	return sb.String()
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
