package tokenkv

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var bucketTokenRecords = []byte("token_records")

// BoltKV implements KV using a single bbolt bucket. Token records sit
// at their own names, next to the owner directory and shard keys of
// pkg/tokenindex; bbolt never sees owner or shard structure, only flat
// key/value pairs.
type BoltKV struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a bbolt database at
// <dataDir>/tokens.db and ensures the token_records bucket exists.
func OpenBolt(dataDir string) (*BoltKV, error) {
	dbPath := filepath.Join(dataDir, "tokens.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokenRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create token_records bucket: %w", err)
	}

	return &BoltKV{db: db}, nil
}

func (b *BoltKV) Get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTokenRecords).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, err
}

func (b *BoltKV) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokenRecords).Put([]byte(key), value)
	})
}

func (b *BoltKV) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokenRecords).Delete([]byte(key))
	})
}

func (b *BoltKV) ForEachPrefix(prefix string, fn func(key string, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTokenRecords).Cursor()
		seek := []byte(prefix)
		for k, v := c.Seek(seek); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if err := fn(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllKeys returns every key in the bucket in sorted order, used by the
// re-index walk (Registry.AllTokenNames).
func (b *BoltKV) AllKeys() ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokenRecords).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

func (b *BoltKV) Close() error {
	return b.db.Close()
}
