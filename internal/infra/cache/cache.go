// Package cache provides short-lived key/value storage: an in-memory TTL
// cache and one-time claim stores backed by memory or Redis.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e entry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemory is a thread-safe in-memory store of entries with per-entry TTL.
type InMemory[T any] struct {
	mu    sync.Mutex
	items map[string]entry[T]
	sweep time.Duration
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache whose expired entries are swept every sweep interval.
func New[T any](sweep time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		sweep: sweep,
		stop:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// SetIfAbsent stores value only when key is missing or expired, and reports
// whether it did.
func (c *InMemory[T]) SetIfAbsent(key string, value T, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.items[key]; ok && !e.expired(now) {
		return false
	}
	c.items[key] = entry[T]{value: value, expiresAt: now.Add(ttl)}
	return true
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Close stops the background sweeper.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(max(c.sweep, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		now := time.Now()
		for k, v := range c.items {
			if v.expired(now) {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}
