package imagecache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
)

const (
	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"
)

// ComputeFunc produces the payload for a cache key on miss.
type ComputeFunc func() ([]byte, error)

// Cache is a TTL-based get-or-compute store for optimized image
// derivatives. Entries are safe to recompute: eviction only costs time,
// never correctness.
type Cache struct {
	entries *gocache.Cache

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func New(cleanupInterval time.Duration) *Cache {
	return &Cache{
		entries: gocache.New(gocache.NoExpiration, cleanupInterval),
		locks:   make(map[string]*keyLock),
	}
}

// GetOrCompute returns the cached payload for key if present and
// unexpired, otherwise calls compute, stores the result with ttl and
// returns it. Concurrent misses on the same key compute once; a failed
// compute stores nothing.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	if payload, found := c.entries.Get(key); found {
		metrics.IncreaseImageCacheRequestsTotalMetric(outcomeHit)
		return payload.([]byte), nil
	}

	lock := c.acquire(key)
	defer c.release(key, lock)

	// another goroutine may have computed the entry while we waited
	if payload, found := c.entries.Get(key); found {
		metrics.IncreaseImageCacheRequestsTotalMetric(outcomeHit)
		return payload.([]byte), nil
	}

	payload, err := compute()
	if err != nil {
		metrics.IncreaseImageCacheRequestsTotalMetric(outcomeError)
		return nil, err
	}

	c.entries.Set(key, payload, ttl)
	metrics.IncreaseImageCacheRequestsTotalMetric(outcomeMiss)
	return payload, nil
}

// Flush drops all entries.
func (c *Cache) Flush() {
	c.entries.Flush()
}

func (c *Cache) acquire(key string) *keyLock {
	c.mu.Lock()
	lock, found := c.locks[key]
	if !found {
		lock = &keyLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.Lock()
	return lock
}

func (c *Cache) release(key string, lock *keyLock) {
	lock.Unlock()

	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()
}
