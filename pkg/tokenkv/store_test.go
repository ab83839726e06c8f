package tokenkv

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// memKV is a trivial in-memory KV used to exercise Store without
// touching bbolt.
type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func (m *memKV) ForEachPrefix(prefix string, fn func(key string, value []byte) error) error {
	for k, v := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			if err := fn(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memKV) AllKeys() ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memKV) Close() error { return nil }

func TestStoreGetMissThenWarm(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv, 10)

	_, ok, err := s.Get("k", false)
	assert.NoError(t, err)
	assert.False(t, ok)

	kv.data["k"] = []byte("v")
	// still a cached miss until an explicit refresh or write
	_, ok, err = s.Get("k", false)
	assert.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get("k", true)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestStorePutInvalidatesStaleMiss(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv, 10)

	_, ok, _ := s.Get("k", false)
	assert.False(t, ok)

	assert.NoError(t, s.Put("k", []byte("v")))

	v, ok, err := s.Get("k", false)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestStoreDeleteInvalidatesCache(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv, 10)

	assert.NoError(t, s.Put("k", []byte("v")))
	assert.NoError(t, s.Delete("k"))

	_, ok, err := s.Get("k", false)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreInvalidateForcesReread(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv, 10)

	assert.NoError(t, s.Put("k", []byte("v1")))
	kv.data["k"] = []byte("v2")

	// cache still holds v1 until explicitly invalidated
	v, _, _ := s.Get("k", false)
	assert.Equal(t, []byte("v1"), v)

	s.Invalidate("k")
	v, _, _ = s.Get("k", false)
	assert.Equal(t, []byte("v2"), v)
}
