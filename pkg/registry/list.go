package registry

import (
	"fmt"
	"sort"

	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenindex"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

// ListEntry is one row of a listing response.
type ListEntry struct {
	Token    string
	Owner    string
	Metadata map[string]any
}

// ListFilter narrows a listing to tokens whose parameter named Key
// stringifies to one of Values.
type ListFilter struct {
	Key    string
	Values map[string]bool
}

// ListOptions controls ListTokens.
type ListOptions struct {
	IncludeDeleted bool
	ShowMetadata   bool
	Owners         []string // nil/empty means every directory owner
	CanManageAs    string   // "" means no manage-token filter
	Filters        []ListFilter
}

// ListTokens walks the owner directory (or a caller-supplied owner
// subset) and every matching shard, applying deletion, authorization
// and parameter filters. It never takes the token lock: listing is a
// pure read.
func (r *Registry) ListTokens(opts ListOptions) ([]ListEntry, error) {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return nil, internalErr("", "list: load directory: %v", err)
	}

	owners := opts.Owners
	if len(owners) == 0 {
		for o := range dir {
			owners = append(owners, o)
		}
	}
	sort.Strings(owners)

	var entries []ListEntry
	for _, owner := range owners {
		key, ok := dir[owner]
		if !ok {
			continue
		}
		shard, err := tokenindex.LoadShard(r.store, key, false)
		if err != nil {
			return nil, internalErr("", "list: load shard for %q: %v", owner, err)
		}

		names := make([]string, 0, len(shard))
		for name := range shard {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			entry := shard[name]
			if entry.Deleted && !opts.IncludeDeleted {
				continue
			}
			if opts.CanManageAs != "" {
				if err := r.authz.ManageToken(opts.CanManageAs, name, tokenauthz.Metadata{Owner: owner}); err != nil {
					continue
				}
			}

			rec, exists, err := r.loadRecord(name, false)
			if err != nil {
				return nil, err
			}
			if !exists {
				continue
			}
			if !matchesFilters(rec.Params, opts.Filters) {
				continue
			}

			entries = append(entries, ListEntry{
				Token:    name,
				Owner:    owner,
				Metadata: tokens.ToMap(rec, opts.ShowMetadata),
			})
		}
	}
	return entries, nil
}

func matchesFilters(p tokens.Params, filters []ListFilter) bool {
	for _, f := range filters {
		val, ok := stringifyParam(p, f.Key)
		if !ok || !f.Values[val] {
			return false
		}
	}
	return true
}

func stringifyParam(p tokens.Params, key string) (string, bool) {
	m := map[string]any{
		"cmd":                p.Cmd,
		"cpus":               p.Cpus,
		"mem":                p.Mem,
		"health-check-url":   p.HealthCheckURL,
		"health-check-proto": p.HealthCheckProto,
		"authentication":     p.Authentication,
		"permitted-user":     p.PermittedUser,
		"run-as-user":        p.RunAsUser,
		"interstitial-secs":  p.InterstitialSecs,
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

// ListOwners returns the set of owners currently in the directory.
func (r *Registry) ListOwners() ([]string, error) {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return nil, internalErr("", "list-owners: %v", err)
	}
	owners := make([]string, 0, len(dir))
	for o := range dir {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners, nil
}

// OwnersMap returns the raw owner directory for operator inspection.
func (r *Registry) OwnersMap() (map[string]string, error) {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return nil, internalErr("", "owners-map: %v", err)
	}
	return dir, nil
}
