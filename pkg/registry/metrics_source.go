package registry

import "github.com/d3v3l0/waiter/pkg/tokenindex"

// OwnerCount implements metrics.Source for the periodic TokensTotal /
// OwnersTotal sampler.
func (r *Registry) OwnerCount() (int, error) {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return 0, internalErr("", "owner count: %v", err)
	}
	return len(dir), nil
}

// TokenCounts walks every shard and returns the live/deleted token
// counts across all owners.
func (r *Registry) TokenCounts() (live int, deleted int, err error) {
	dir, derr := tokenindex.LoadDirectory(r.store, false)
	if derr != nil {
		return 0, 0, internalErr("", "token counts: %v", derr)
	}
	for _, key := range dir {
		shard, serr := tokenindex.LoadShard(r.store, key, false)
		if serr != nil {
			return 0, 0, internalErr("", "token counts: load shard %q: %v", key, serr)
		}
		for _, e := range shard {
			if e.Deleted {
				deleted++
			} else {
				live++
			}
		}
	}
	return live, deleted, nil
}
