package tokenindex

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/d3v3l0/waiter/pkg/tokenkv"
)

// Directory is the owner → shard-key mapping. Shard keys are opaque
// and minted fresh on every re-index; they are never reused.
type Directory map[string]string

// LoadDirectory fetches and decodes the owner directory, returning an
// empty Directory if it has never been written.
func LoadDirectory(store *tokenkv.Store, refresh bool) (Directory, error) {
	raw, ok, err := store.Get(DirectoryKey, refresh)
	if err != nil {
		return nil, fmt.Errorf("load owner directory: %w", err)
	}
	if !ok {
		return Directory{}, nil
	}
	var dir Directory
	if err := json.Unmarshal(raw, &dir); err != nil {
		return nil, fmt.Errorf("decode owner directory: %w", err)
	}
	if dir == nil {
		dir = Directory{}
	}
	return dir, nil
}

// SaveDirectory persists dir to its fixed key.
func SaveDirectory(store *tokenkv.Store, dir Directory) error {
	data, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode owner directory: %w", err)
	}
	return store.Put(DirectoryKey, data)
}

// EnsureOwnerKey returns the shard key already assigned to owner, or
// mints and persists a new one if owner has none yet. Callers must
// hold the token lock: minting and the directory write are not
// internally synchronized against concurrent callers.
func EnsureOwnerKey(store *tokenkv.Store, dir Directory, owner string) (Directory, string, error) {
	if owner == "" {
		return dir, "", fmt.Errorf("tokenindex: owner must not be blank")
	}
	if key, ok := dir[owner]; ok {
		return dir, key, nil
	}

	key := ShardKey(uuid.NewString())
	next := make(Directory, len(dir)+1)
	for k, v := range dir {
		next[k] = v
	}
	next[owner] = key

	if err := SaveDirectory(store, next); err != nil {
		return dir, "", err
	}
	return next, key, nil
}
