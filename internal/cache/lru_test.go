package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRU(DefaultConfig())

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("octo/demo:tree:main", []string{"src"})
	value, ok := c.Get("octo/demo:tree:main")
	assert.True(t, ok)
	assert.Equal(t, []string{"src"}, value)
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU(Config{MaxSize: 10, DefaultTTL: 10 * time.Millisecond})

	c.Set("key", "value")
	_, ok := c.Get("key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU(Config{MaxSize: 3})

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, 3, c.Len())

	// Oldest entries are gone, newest survive.
	_, ok := c.Get("key-0")
	assert.False(t, ok)
	_, ok = c.Get("key-4")
	assert.True(t, ok)
}

func TestLRUInvalidatePrefix(t *testing.T) {
	c := NewLRU(DefaultConfig())

	c.Set("octo/demo:tree:main", 1)
	c.Set("octo/demo:file:src/index.ts", 2)
	c.Set("octo/site:tree:main", 3)

	c.Invalidate("octo/demo:")

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("octo/site:tree:main")
	assert.True(t, ok)
}
