package cache

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Constants for local cache configuration
const (
	defaultMaxSize         = 500
	defaultTTL             = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// LocalCache is a capacity-bounded TTL cache with least-recently-used
// eviction. Expired entries are dropped lazily on Get and by Cleanup.
type LocalCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	hits      int64
	misses    int64
	evictions int64

	cleanupInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	startOnce       sync.Once
	closeOnce       sync.Once
}

// cacheEntry wraps a cached value with its lifetime
type cacheEntry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	expiresAt time.Time
}

func (e *cacheEntry[V]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// ItemStats describes one cached entry.
type ItemStats struct {
	Key          string
	Age          time.Duration
	TTLRemaining time.Duration
}

// Stats is a snapshot of the cache.
type Stats struct {
	Size        int
	MaxSize     int
	Utilization float64 // Size / MaxSize, 0..1
	Hits        int64
	Misses      int64
	Evictions   int64
	Items       []ItemStats // most recently used first
}

// Option is a functional option for configuring a LocalCache
type Option func(*options)

type options struct {
	maxSize         int
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// WithMaxSize sets the capacity
func WithMaxSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithDefaultTTL sets the TTL used when Set is given zero
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithCleanupInterval sets the period of the background sweep
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewLocalCache creates an empty cache. The background sweep is not
// started until StartCleanup is called.
func NewLocalCache[V any](opts ...Option) *LocalCache[V] {
	o := options{
		maxSize:         defaultMaxSize,
		ttl:             defaultTTL,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSize <= 0 {
		o.maxSize = defaultMaxSize
	}
	if o.ttl <= 0 {
		o.ttl = defaultTTL
	}

	return &LocalCache[V]{
		entries:         make(map[string]*list.Element, o.maxSize),
		order:           list.New(),
		maxSize:         o.maxSize,
		ttl:             o.ttl,
		now:             o.now,
		logger:          o.logger,
		cleanupInterval: o.cleanupInterval,
		stopCh:          make(chan struct{}),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := elem.Value.(*cacheEntry[V])
	if e.isExpired(c.now()) {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Set stores value under key. A zero ttl uses the default. When the cache
// is full the least recently used entry is evicted first.
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*cacheEntry[V])
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}

	e := &cacheEntry[V]{key: key, value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.entries[key] = c.order.PushFront(e)
}

// Delete removes key and reports whether it was present.
func (c *LocalCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Invalidate removes every entry whose key contains pattern and returns
// how many were removed.
func (c *LocalCache[V]) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.entries {
		if strings.Contains(key, pattern) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("Invalidated cache entries",
			zap.String("pattern", pattern),
			zap.Int("removed", removed))
	}
	return removed
}

// Clear removes every entry.
func (c *LocalCache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
	return n
}

// Cleanup removes expired entries and returns how many were removed.
func (c *LocalCache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry[V]).isExpired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (c *LocalCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache.
func (c *LocalCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{
		Size:        c.order.Len(),
		MaxSize:     c.maxSize,
		Utilization: float64(c.order.Len()) / float64(c.maxSize),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Items:       make([]ItemStats, 0, c.order.Len()),
	}
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*cacheEntry[V])
		remaining := e.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.Items = append(s.Items, ItemStats{
			Key:          e.key,
			Age:          now.Sub(e.createdAt),
			TTLRemaining: remaining,
		})
	}
	return s
}

// Keys returns the cached keys in sorted order.
func (c *LocalCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartCleanup launches the periodic sweep. Calling it again is a no-op.
func (c *LocalCache[V]) StartCleanup() {
	if c.cleanupInterval <= 0 {
		return
	}
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.cleanupLoop()
	})
}

// Close stops the cleanup goroutine
// Safe to call multiple times
func (c *LocalCache[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
	})
	return nil
}

func (c *LocalCache[V]) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				c.logger.Debug("Cache cleanup removed expired entries", zap.Int("removed", removed))
			}
		}
	}
}

// removeElement must be called with mu held.
func (c *LocalCache[V]) removeElement(elem *list.Element) {
	e := elem.Value.(*cacheEntry[V])
	delete(c.entries, e.key)
	c.order.Remove(elem)
}
