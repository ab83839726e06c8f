package tokenkv

// DefaultCacheCapacity bounds the read-through cache's resident set.
// Each entry is a single token record; a few thousand covers a busy
// deployment's working set without tying the process to an unbounded
// amount of memory.
const DefaultCacheCapacity = 4096

// Store fronts a KV with a read-through LRU cache. Get honors a
// refresh flag that bypasses the cache entirely, used by callers that
// just received a peer invalidation gossip and cannot trust a stale
// local entry.
type Store struct {
	kv    KV
	cache *cache
}

// NewStore wraps kv with a cache of the given capacity. capacity <= 0
// means unbounded.
func NewStore(kv KV, capacity int) *Store {
	return &Store{kv: kv, cache: newCache(capacity)}
}

// Get returns the bytes stored at key. refresh=true skips the cache on
// the way in but still populates it with the fresh result on the way
// out, so a single refreshing reader warms the cache for the next
// caller.
func (s *Store) Get(key string, refresh bool) ([]byte, bool, error) {
	if !refresh {
		if v, cached := s.cache.get(key); cached {
			return v, v != nil, nil
		}
	}

	v, err := s.kv.Get(key)
	if err == ErrNotFound {
		s.cache.setMiss(key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.cache.set(key, v)
	return v, true, nil
}

// Put writes value for key and refreshes the cache entry in place so
// the writer's own next read is never a stale hit.
func (s *Store) Put(key string, value []byte) error {
	if err := s.kv.Put(key, value); err != nil {
		return err
	}
	s.cache.set(key, value)
	return nil
}

// Delete removes key from the store and drops any cached entry for it.
func (s *Store) Delete(key string) error {
	if err := s.kv.Delete(key); err != nil {
		return err
	}
	s.cache.invalidate(key)
	return nil
}

// Invalidate drops a cached entry without touching the underlying KV,
// used when a peer broadcast reports a key changed elsewhere.
func (s *Store) Invalidate(key string) {
	s.cache.invalidate(key)
}

// ForEachPrefix delegates straight to the underlying KV: a full
// directory or shard scan always reads through, since a partial cache
// can never be trusted to enumerate completely.
func (s *Store) ForEachPrefix(prefix string, fn func(key string, value []byte) error) error {
	return s.kv.ForEachPrefix(prefix, fn)
}

// AllKeys delegates straight to the underlying KV, for the same reason
// ForEachPrefix does: full enumeration must never trust a partial cache.
func (s *Store) AllKeys() ([]string, error) {
	return s.kv.AllKeys()
}

// CacheStats reports the cache's cumulative hit/miss counters. Nothing
// in this module feeds them into KVCacheHitsTotal.
func (s *Store) CacheStats() (hits, misses uint64) {
	return s.cache.snapshot()
}

func (s *Store) Close() error {
	return s.kv.Close()
}
