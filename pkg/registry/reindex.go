package registry

import (
	"strings"

	"github.com/google/uuid"

	"github.com/d3v3l0/waiter/pkg/events"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/tokenindex"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

// Reindex rebuilds the owner directory and every shard from scratch,
// given the full set of token names an external lister has enumerated.
// It runs under tokenLockName so it cannot interleave with a
// concurrent create/update/delete.
func (r *Registry) Reindex(names []string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReindexDuration)

	return r.locks.withLock(tokenLockName, func() error {
		return r.commitReindex(names)
	})
}

func (r *Registry) commitReindex(names []string) error {
	oldDir, err := tokenindex.LoadDirectory(r.store, true)
	if err != nil {
		return internalErr("", "reindex: load old directory: %v", err)
	}

	byOwner := map[string][]string{}
	records := map[string]tokens.Record{}
	for _, name := range names {
		rec, exists, err := r.loadRecord(name, true)
		if err != nil {
			return internalErr(name, "reindex: load token: %v", err)
		}
		if !exists || rec.Metadata.Owner == "" {
			continue
		}
		byOwner[rec.Metadata.Owner] = append(byOwner[rec.Metadata.Owner], name)
		records[name] = rec
	}

	newDir := tokenindex.Directory{}
	liveShardKeys := map[string]bool{}

	for owner, toks := range byOwner {
		key := tokenindex.ShardKey(uuid.NewString())
		shard := tokenindex.Shard{}
		for _, tok := range toks {
			rec := records[tok]
			shard[tok] = tokenindex.MakeIndexEntry(tokens.Hash(rec), rec.Metadata.Deleted, rec.Metadata.LastUpdateTime)
		}
		if err := tokenindex.SaveShard(r.store, key, shard); err != nil {
			return internalErr("", "reindex: save shard for owner %q: %v", owner, err)
		}
		newDir[owner] = key
		liveShardKeys[key] = true
		metrics.ReindexTokensProcessed.Add(float64(len(toks)))
	}

	// New shards are fully written before the directory swap, so a
	// reader racing the rebuild sees either the old directory pointing
	// at intact old shards, or the new directory pointing at
	// already-written new shards.
	if err := tokenindex.SaveDirectory(r.store, newDir); err != nil {
		return internalErr("", "reindex: save new directory: %v", err)
	}

	for _, oldKey := range oldDir {
		if liveShardKeys[oldKey] {
			continue
		}
		if err := r.store.Delete(oldKey); err != nil {
			r.log.Warn().Str("shard_key", oldKey).Err(err).Msg("reindex: failed to delete stale shard")
		}
	}

	r.broadcast(PeerRefresh{Index: true})
	r.publish(events.EventIndexRebuilt, "", "")
	return nil
}

// AllTokenNames enumerates every token name currently in the KV,
// excluding the directory and shard index keys themselves. It is the
// external lister Reindex expects: operators call it to get the full
// universe of names to pass to Reindex.
func (r *Registry) AllTokenNames() ([]string, error) {
	keys, err := r.store.AllKeys()
	if err != nil {
		return nil, internalErr("", "list all keys: %v", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == tokenindex.DirectoryKey {
			continue
		}
		if strings.HasPrefix(k, tokenindex.ShardKeyPrefix) {
			continue
		}
		names = append(names, k)
	}
	return names, nil
}
