package tokenkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGet(t *testing.T) {
	c := newCache(10)
	c.set("a", []byte("1"))

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestCacheNegativeLookup(t *testing.T) {
	c := newCache(10)
	c.setMiss("ghost")

	v, ok := c.get("ghost")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestCacheEvictsOldestOnCapacity(t *testing.T) {
	c := newCache(2)
	c.set("a", []byte("1"))
	c.set("b", []byte("2"))
	c.set("c", []byte("3"))

	assert.Equal(t, 2, c.len())
	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestCacheGetPromotesToFront(t *testing.T) {
	c := newCache(2)
	c.set("a", []byte("1"))
	c.set("b", []byte("2"))

	// touching "a" should make "b" the eviction candidate
	c.get("a")
	c.set("c", []byte("3"))

	_, ok := c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := newCache(10)
	c.set("a", []byte("1"))
	c.invalidate("a")

	_, ok := c.get("a")
	assert.False(t, ok)
}
