package geo

import (
	"sync"
	"sync/atomic"
	"time"
)

// CacheConfig sizes a Cache.
type CacheConfig struct {
	// Capacity bounds the number of cached addresses. Default: 10000
	Capacity int
	// TTL applies to entries stored without their own lifetime. Default: 1h
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Capacity: 10000, TTL: time.Hour}
}

// slot is one cached address. Slots form a ring through the sentinel in
// Cache.recent, ordered from most to least recently read.
type slot struct {
	ip         string
	loc        Location
	deadline   time.Time
	prev, next *slot
}

// Cache remembers resolved locations per address. Every entry carries its
// own deadline so failed lookups can be held for less time than answers.
// A full cache drops the address read least recently.
type Cache struct {
	mu       sync.Mutex
	byIP     map[string]*slot
	recent   slot
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits, misses, evictions atomic.Uint64
}

func NewCache(cfg CacheConfig) *Cache {
	def := DefaultCacheConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	c := &Cache{
		byIP:     make(map[string]*slot, cfg.Capacity),
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	c.recent.prev, c.recent.next = &c.recent, &c.recent
	return c
}

// Get returns the live entry for ip and marks it recently read. Hits and
// misses feed Stats.
func (c *Cache) Get(ip string) (Location, bool) {
	if ip == "" {
		return Location{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.live(ip)
	if s == nil {
		c.misses.Add(1)
		return Location{}, false
	}
	c.unlink(s)
	c.pushFront(s)
	c.hits.Add(1)
	return s.loc, true
}

// peek is Get without touching the statistics or the read order.
func (c *Cache) peek(ip string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.live(ip); s != nil {
		return s.loc, true
	}
	return Location{}, false
}

// Set stores loc for ip until ttl elapses. A non-positive ttl means the
// cache default. Empty addresses are ignored.
func (c *Cache) Set(ip string, loc Location, ttl time.Duration) {
	if ip == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	deadline := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.byIP[ip]; ok {
		s.loc, s.deadline = loc, deadline
		c.unlink(s)
		c.pushFront(s)
		return
	}
	for len(c.byIP) >= c.capacity {
		c.drop(c.recent.prev)
		c.evictions.Add(1)
	}
	s := &slot{ip: ip, loc: loc, deadline: deadline}
	c.byIP[ip] = s
	c.pushFront(s)
}

// live returns ip's slot, discarding it first if its deadline has passed.
// Callers hold mu.
func (c *Cache) live(ip string) *slot {
	s, ok := c.byIP[ip]
	if !ok {
		return nil
	}
	if c.now().After(s.deadline) {
		c.drop(s)
		return nil
	}
	return s
}

func (c *Cache) drop(s *slot) {
	c.unlink(s)
	delete(c.byIP, s.ip)
}

func (c *Cache) unlink(s *slot) {
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev, s.next = nil, nil
}

func (c *Cache) pushFront(s *slot) {
	s.prev = &c.recent
	s.next = c.recent.next
	c.recent.next.prev = s
	c.recent.next = s
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	HitRate  float64
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	size := len(c.byIP)
	c.mu.Unlock()

	st := CacheStats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Evicts:   c.evictions.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
