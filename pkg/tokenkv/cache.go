package tokenkv

import (
	"container/list"
	"sync"
)

// entry is a single cache slot. value is nil to represent a cached
// negative lookup (key confirmed absent), distinguished from "not
// cached at all" by presence in data.
type entry struct {
	key   string
	value []byte
	miss  bool
}

// cache is a fixed-capacity, LRU-evicted in-memory mirror of recently
// read or written keys. It holds no TTL: entries live until evicted by
// capacity pressure or explicitly invalidated by a write, a delete, or
// a peer broadcast.
type cache struct {
	mu       sync.RWMutex
	data     map[string]*list.Element
	order    *list.List
	capacity int
	hits     uint64
	misses   uint64
}

func newCache(capacity int) *cache {
	return &cache{
		data:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// get returns the cached value for key. The second return is false if
// the key is not in the cache at all; if it is a cached negative
// lookup, ok is true and value is nil.
func (c *cache) get(key string) (value []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.data[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	e := elem.Value.(*entry)
	if e.miss {
		return nil, true
	}
	return e.value, true
}

func (c *cache) set(key string, value []byte) {
	c.put(key, value, false)
}

func (c *cache) setMiss(key string) {
	c.put(key, nil, true)
}

func (c *cache) put(key string, value []byte, miss bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.data[key]; found {
		e := elem.Value.(*entry)
		e.value, e.miss = value, miss
		c.order.MoveToFront(elem)
		return
	}

	if c.capacity > 0 && c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(&entry{key: key, value: value, miss: miss})
	c.data[key] = elem
}

func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, found := c.data[key]; found {
		c.order.Remove(elem)
		delete(c.data, key)
	}
}

func (c *cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.data, elem.Value.(*entry).key)
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// snapshot reports how many get calls found a cached entry (hit or
// cached negative) and how many found none.
func (c *cache) snapshot() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
