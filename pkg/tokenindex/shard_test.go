package tokenindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardLoadSaveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key := ShardKey("shard-1")

	s, err := LoadShard(store, key, false)
	require.NoError(t, err)
	assert.Empty(t, s)

	s["t1"] = MakeIndexEntry("h1", false, time.Unix(100, 0).UTC())
	require.NoError(t, SaveShard(store, key, s))

	reloaded, err := LoadShard(store, key, true)
	require.NoError(t, err)
	assert.Equal(t, "h1", reloaded["t1"].Hash)
	assert.False(t, reloaded["t1"].Deleted)
}

func TestShardLiveCount(t *testing.T) {
	s := Shard{
		"t1": MakeIndexEntry("h1", false, time.Time{}),
		"t2": MakeIndexEntry("h2", true, time.Time{}),
		"t3": MakeIndexEntry("h3", false, time.Time{}),
	}
	assert.Equal(t, 2, s.LiveCount())
}
