// Package tokenkv implements the registry's storage layer: a single-
// bucket key/value driver backed by bbolt, fronted by a read-through
// LRU cache that a caller can bypass with refresh=true.
package tokenkv

import "errors"

// ErrNotFound is returned by KV.Get when the key is absent. It is
// distinct from a nil, nil-error result so callers can tell "no such
// key" apart from "empty value".
var ErrNotFound = errors.New("tokenkv: key not found")

// KV is the minimal durable key/value contract the registry needs. It
// intentionally has no notion of transactions spanning multiple keys:
// callers serialize conflicting writes with their own lock (the
// registry uses a single named lock for every mutation) rather than
// relying on the store for atomicity across keys.
type KV interface {
	// Get returns the stored bytes for key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Put writes value for key, creating or overwriting it.
	Put(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// ForEachPrefix calls fn for every key with the given prefix, in
	// lexicographic key order. Returning an error from fn stops the
	// iteration and is returned from ForEachPrefix.
	ForEachPrefix(prefix string, fn func(key string, value []byte) error) error
	// AllKeys returns every key currently stored, in sorted order.
	AllKeys() ([]string, error)
	// Close releases the underlying handle.
	Close() error
}
