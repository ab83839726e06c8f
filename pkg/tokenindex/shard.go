package tokenindex

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/d3v3l0/waiter/pkg/tokenkv"
)

// Entry is the canonical shape of one shard slot: a token's current
// hash, deletion state and last-update time, as tracked by the index.
type Entry struct {
	Hash           string    `json:"hash"`
	Deleted        bool      `json:"deleted"`
	LastUpdateTime time.Time `json:"last-update-time"`
}

// MakeIndexEntry produces a canonical shard entry.
func MakeIndexEntry(hash string, deleted bool, lastUpdateTime time.Time) Entry {
	return Entry{Hash: hash, Deleted: deleted, LastUpdateTime: lastUpdateTime}
}

// Shard is one owner's token → Entry mapping.
type Shard map[string]Entry

// LoadShard fetches and decodes the shard at key, returning an empty
// Shard if it does not exist (e.g. a brand new owner).
func LoadShard(store *tokenkv.Store, key string, refresh bool) (Shard, error) {
	raw, ok, err := store.Get(key, refresh)
	if err != nil {
		return nil, fmt.Errorf("load shard %s: %w", key, err)
	}
	if !ok {
		return Shard{}, nil
	}
	var s Shard
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", key, err)
	}
	if s == nil {
		s = Shard{}
	}
	return s, nil
}

// SaveShard persists shard content at key.
func SaveShard(store *tokenkv.Store, key string, s Shard) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode shard %s: %w", key, err)
	}
	return store.Put(key, data)
}

// LiveCount returns the number of entries in s with Deleted == false.
func (s Shard) LiveCount() int {
	n := 0
	for _, e := range s {
		if !e.Deleted {
			n++
		}
	}
	return n
}
