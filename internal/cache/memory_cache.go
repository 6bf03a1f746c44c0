package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/calcfield/internal/formula"
	"github.com/ZanzyTHEbar/calcfield/internal/logging"
	"github.com/ZanzyTHEbar/errbuilder-go"
)

// InMemoryCache is a thread-safe in-memory cache of parsed formulas keyed
// by formula text. Formula text for a field revision never changes in
// place, so entries never need invalidation beyond the TTL.
type InMemoryCache struct {
	store  map[string]cacheItem
	mutex  sync.RWMutex
	ttl    time.Duration
	logger logging.Logger

	done      chan struct{}
	closeOnce sync.Once
}

type cacheItem struct {
	value      *formula.Formula
	expiration int64
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithLogger sets the cache logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *InMemoryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewInMemoryCache creates a new in-memory cache with a default TTL. A
// non-positive TTL keeps entries until Close.
func NewInMemoryCache(defaultTTL time.Duration, options ...Option) *InMemoryCache {
	c := &InMemoryCache{
		store:  make(map[string]cacheItem),
		ttl:    defaultTTL,
		logger: logging.NopLogger{},
		done:   make(chan struct{}),
	}
	for _, option := range options {
		option(c)
	}
	if c.ttl > 0 {
		go c.cleanupLoop(cleanupInterval(c.ttl))
	}
	return c
}

// Get retrieves a parsed formula from the cache.
func (c *InMemoryCache) Get(ctx context.Context, text string) (*formula.Formula, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[text]
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("formula not cached", nil))
	}

	if item.expiration > 0 && time.Now().UnixNano() > item.expiration {
		c.logger.Debug("formula cache item expired", map[string]interface{}{"formula": text})
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("formula cache item expired", nil))
	}

	return item.value, nil
}

// Set adds or replaces a parsed formula.
func (c *InMemoryCache) Set(ctx context.Context, text string, f *formula.Formula) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}
	if f == nil {
		return errbuilder.GenericErr("refusing to cache nil formula", nil)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var expiration int64
	if c.ttl > 0 {
		expiration = time.Now().Add(c.ttl).UnixNano()
	}
	c.store[text] = cacheItem{
		value:      f,
		expiration: expiration,
	}
	c.logger.Debug("formula cache item set", map[string]interface{}{"formula": text})
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine. The cache stays readable.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// cleanupLoop periodically removes expired items.
func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired(time.Now().UnixNano())
		}
	}
}

func (c *InMemoryCache) evictExpired(now int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key, item := range c.store {
		if item.expiration > 0 && now > item.expiration {
			delete(c.store, key)
		}
	}
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 10*time.Minute {
		return ttl
	}
	return 10 * time.Minute
}
