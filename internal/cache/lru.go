package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Config tunes an LRU instance.
type Config struct {
	MaxSize    int
	DefaultTTL time.Duration
}

// DefaultConfig suits the repository content cache: small, short-lived.
func DefaultConfig() Config {
	return Config{MaxSize: 200, DefaultTTL: time.Minute}
}

type entry struct {
	key       string
	value     any
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired() bool {
	return e.ttl > 0 && time.Since(e.createdAt) > e.ttl
}

// LRU is a TTL-aware LRU cache. It fronts the repository provider so tree
// and file reads hammered by the editor do not burn API rate limit.
type LRU struct {
	mu       sync.Mutex
	config   Config
	items    map[string]*list.Element
	eviction *list.List
}

func NewLRU(config Config) *LRU {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	return &LRU{
		config:   config,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if e.expired() {
		c.removeLocked(elem)
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *LRU) Set(key string, value any) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores value under key; ttl zero means no expiry.
func (c *LRU) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.createdAt = time.Now()
		e.ttl = ttl
		c.eviction.MoveToFront(elem)
		return
	}

	elem := c.eviction.PushFront(&entry{key: key, value: value, createdAt: time.Now(), ttl: ttl})
	c.items[key] = elem

	for len(c.items) > c.config.MaxSize {
		if oldest := c.eviction.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

// Delete removes one key.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// Invalidate removes every key with the given prefix. Used after a commit
// lands to drop a whole project's cached reads.
func (c *LRU) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
		}
	}
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.eviction.Remove(elem)
	delete(c.items, e.key)
}
