package tokenindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d3v3l0/waiter/pkg/tokenkv"
)

func newTestStore(t *testing.T) *tokenkv.Store {
	t.Helper()
	db, err := tokenkv.OpenBolt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return tokenkv.NewStore(db, 64)
}

func TestLoadDirectoryEmptyWhenAbsent(t *testing.T) {
	store := newTestStore(t)

	dir, err := LoadDirectory(store, false)
	assert.NoError(t, err)
	assert.Empty(t, dir)
}

func TestEnsureOwnerKeyMintsOnce(t *testing.T) {
	store := newTestStore(t)
	dir, err := LoadDirectory(store, false)
	require.NoError(t, err)

	dir, key1, err := EnsureOwnerKey(store, dir, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, key1)
	assert.True(t, strings.HasPrefix(key1, ShardKeyPrefix), "shard key %q must carry the shard prefix", key1)

	dir, key2, err := EnsureOwnerKey(store, dir, "alice")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	saved, err := LoadDirectory(store, true)
	require.NoError(t, err)
	assert.Equal(t, key1, saved["alice"])
}

func TestEnsureOwnerKeyDistinctOwners(t *testing.T) {
	store := newTestStore(t)
	dir, _ := LoadDirectory(store, false)

	dir, aliceKey, err := EnsureOwnerKey(store, dir, "alice")
	require.NoError(t, err)
	_, bobKey, err := EnsureOwnerKey(store, dir, "bob")
	require.NoError(t, err)

	assert.NotEqual(t, aliceKey, bobKey)
}

func TestEnsureOwnerKeyRejectsBlankOwner(t *testing.T) {
	store := newTestStore(t)
	dir, _ := LoadDirectory(store, false)

	_, _, err := EnsureOwnerKey(store, dir, "")
	assert.Error(t, err)
}
