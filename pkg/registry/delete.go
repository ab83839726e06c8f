package registry

import (
	"github.com/d3v3l0/waiter/pkg/events"
	"github.com/d3v3l0/waiter/pkg/log"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenindex"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

// DeleteResult mirrors MutationResult for the delete path: a hard
// delete has no ETag or remaining record to report.
type DeleteResult struct {
	Hard bool
	ETag string
}

// Delete runs the delete pipeline: soft delete by default, hard
// delete when hardDelete is set and the caller is an administrator.
func (r *Registry) Delete(user, name string, ifMatch string, hardDelete bool) (DeleteResult, error) {
	timer := metrics.NewTimer()
	kind := "delete-soft"
	if hardDelete {
		kind = "delete-hard"
	}
	defer func() { timer.ObserveDurationVec(metrics.MutationDuration, kind) }()

	var result DeleteResult
	err := r.locks.withLock(tokenLockName, func() error {
		res, derr := r.commitDelete(user, name, ifMatch, hardDelete)
		if derr != nil {
			return derr
		}
		result = res
		return nil
	})
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
		return DeleteResult{}, err
	}
	metrics.MutationsTotal.WithLabelValues(kind, "ok").Inc()
	return result, nil
}

func (r *Registry) commitDelete(user, name, ifMatch string, hardDelete bool) (DeleteResult, error) {
	existing, exists, err := r.loadRecord(name, true)
	if err != nil {
		return DeleteResult{}, err
	}
	if !exists || existing.Empty() {
		return DeleteResult{}, notFoundErr(name)
	}

	existingHash := tokens.Hash(existing)
	if ifMatch != "" && ifMatch != existingHash {
		metrics.PreconditionFailuresTotal.Inc()
		return DeleteResult{}, preconditionErr(name, ifMatch, existingHash)
	}

	if hardDelete {
		if err := r.authz.AdministerToken(user, name, tokenauthz.Metadata{Owner: existing.Metadata.Owner}); err != nil {
			return DeleteResult{}, authorizationErr(name, err)
		}
		if !existing.Metadata.Deleted && ifMatch == "" {
			return DeleteResult{}, validationErr(name, "hard delete of a live token requires If-Match")
		}

		if err := r.store.Delete(name); err != nil {
			return DeleteResult{}, internalErr(name, "delete token record: %v", err)
		}
		if err := r.removeFromShard(name, existing.Metadata.Owner); err != nil {
			return DeleteResult{}, err
		}

		r.broadcast(PeerRefresh{Token: name, Owner: existing.Metadata.Owner})
		r.publish(events.EventTokenDeleted, name, existing.Metadata.Owner)
		hardDeleteLogger := log.WithOwner(log.WithToken(r.log, name), existing.Metadata.Owner)
		hardDeleteLogger.Info().Msg("hard deleted " + name)
		return DeleteResult{Hard: true}, nil
	}

	if err := r.authz.ManageToken(user, name, tokenauthz.Metadata{Owner: existing.Metadata.Owner}); err != nil {
		return DeleteResult{}, authorizationErr(name, err)
	}

	tombstone := existing
	tombstone.Metadata.Deleted = true
	tombstone.Metadata.LastUpdateTime = r.clock()
	tombstone.Metadata.LastUpdateUser = user
	tombstone = tombstone.WithHistory(existing.Snapshot(), r.cfg.HistoryLimit)

	if err := r.saveRecord(name, tombstone); err != nil {
		return DeleteResult{}, err
	}

	newHash := tokens.Hash(tombstone)
	if err := r.updateShards(name, existing.Metadata.Owner, existing.Metadata.Owner, false, newHash, true, tombstone.Metadata.LastUpdateTime); err != nil {
		return DeleteResult{}, err
	}

	r.broadcast(PeerRefresh{Token: name, Owner: existing.Metadata.Owner})
	r.publish(events.EventTokenDeleted, name, existing.Metadata.Owner)
	softDeleteLogger := log.WithOwner(log.WithToken(r.log, name), existing.Metadata.Owner)
	softDeleteLogger.Info().Msg("soft deleted " + name)
	return DeleteResult{Hard: false, ETag: newHash}, nil
}

func (r *Registry) removeFromShard(token, owner string) error {
	if owner == "" {
		// Blank owner on delete: skip the index update rather than fail.
		return nil
	}
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return internalErr(token, "load directory: %v", err)
	}
	key, ok := dir[owner]
	if !ok {
		return nil
	}
	shard, err := tokenindex.LoadShard(r.store, key, false)
	if err != nil {
		return internalErr(token, "load shard %q: %v", key, err)
	}
	delete(shard, token)
	if err := tokenindex.SaveShard(r.store, key, shard); err != nil {
		return internalErr(token, "save shard %q: %v", key, err)
	}
	return nil
}
