package registry

import (
	"time"

	"github.com/d3v3l0/waiter/pkg/events"
	"github.com/d3v3l0/waiter/pkg/log"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenindex"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

// MutationResult is what a create/update call returns: the committed
// record, its fresh ETag, and a human-readable message ("created",
// "updated" or the idempotence short-circuit message).
type MutationResult struct {
	Record  tokens.Record
	ETag    string
	Message string
	NoOp    bool
}

// CreateOrUpdate runs the full create/update pipeline: precondition
// checks outside the lock, then authorization, optimistic concurrency,
// quota and the index-maintaining write inside it. validate may be
// nil, in which case tokens.DefaultValidator is used. cluster is the
// caller-resolved cluster-calculator(request) result; pass "" to fall
// back to the calculator's Default().
func (r *Registry) CreateOrUpdate(user, name string, body map[string]any, ifMatch string, admin bool, cluster string, validate tokens.Validator) (MutationResult, error) {
	timer := metrics.NewTimer()
	kind := "update"
	defer func() { timer.ObserveDurationVec(metrics.MutationDuration, kind) }()

	if err := tokens.ValidateName(name, r.cfg.Reserved); err != nil {
		metrics.MutationsTotal.WithLabelValues(kind, "validation-error").Inc()
		return MutationResult{}, validationErr(name, "%v", err)
	}
	if len(body) == 0 {
		metrics.MutationsTotal.WithLabelValues(kind, "validation-error").Inc()
		return MutationResult{}, validationErr(name, "request body must set at least one field")
	}
	if !admin {
		for _, k := range tokens.AdminOnlyMetadataKeys {
			if _, present := body[k]; present {
				metrics.MutationsTotal.WithLabelValues(kind, "validation-error").Inc()
				return MutationResult{}, validationErr(name, "metadata field %q may only be set in admin mode", k)
			}
		}
	}

	proposed, err := tokens.FromMap(body)
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(kind, "validation-error").Inc()
		return MutationResult{}, validationErr(name, "%v", err)
	}
	if validate == nil {
		validate = tokens.DefaultValidator
	}
	if err := validate(&proposed.Params); err != nil {
		metrics.MutationsTotal.WithLabelValues(kind, "validation-error").Inc()
		return MutationResult{}, validationErr(name, "%v", err)
	}

	var result MutationResult
	err = r.locks.withLock(tokenLockName, func() error {
		res, created, cerr := r.commitCreateOrUpdate(user, name, body, proposed, ifMatch, admin, cluster)
		if cerr != nil {
			return cerr
		}
		result = res
		if created {
			kind = "create"
		}
		return nil
	})

	if err != nil {
		metrics.MutationsTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
		return MutationResult{}, err
	}
	metrics.MutationsTotal.WithLabelValues(kind, "ok").Inc()
	return result, nil
}

func outcomeLabel(err error) string {
	if re, ok := err.(*Error); ok {
		switch re.Kind {
		case KindAuthorization:
			return "authorization-error"
		case KindQuota:
			return "quota-error"
		case KindPrecondition:
			return "precondition-error"
		case KindNotFound:
			return "not-found-error"
		case KindValidation:
			return "validation-error"
		}
	}
	return "internal-error"
}

// commitCreateOrUpdate runs everything the pipeline needs to do while
// holding tokenLockName. It returns whether this call created a brand
// new token, for the caller's metric label.
func (r *Registry) commitCreateOrUpdate(user, name string, body map[string]any, proposed tokens.Record, ifMatch string, admin bool, cluster string) (MutationResult, bool, error) {
	existing, exists, err := r.loadRecord(name, true)
	if err != nil {
		return MutationResult{}, false, err
	}

	proposedOwner := proposed.Metadata.Owner
	if proposedOwner == "" {
		if exists {
			proposedOwner = existing.Metadata.Owner
		} else {
			proposedOwner = user
		}
	}

	if err := r.authorize(user, name, admin, exists, existing.Metadata, proposedOwner, proposed.Params.RunAsUser, ifMatch); err != nil {
		return MutationResult{}, false, err
	}

	newMeta := existing.Metadata
	newMeta.Owner = proposedOwner
	newMeta.Cluster = cluster
	if newMeta.Cluster == "" {
		newMeta.Cluster = r.cluster.Default()
	}
	if proposed.Metadata.Cluster != "" {
		newMeta.Cluster = proposed.Metadata.Cluster
	}
	if admin && !proposed.Metadata.LastUpdateTime.IsZero() {
		newMeta.LastUpdateTime = proposed.Metadata.LastUpdateTime
	} else {
		newMeta.LastUpdateTime = r.clock()
	}
	if admin && proposed.Metadata.LastUpdateUser != "" {
		newMeta.LastUpdateUser = proposed.Metadata.LastUpdateUser
	} else {
		newMeta.LastUpdateUser = user
	}
	if admin && proposed.Metadata.Root != "" {
		newMeta.Root = proposed.Metadata.Root
	} else if newMeta.Root == "" {
		newMeta.Root = r.cfg.GlobalRoot
	}
	newMeta.Deleted = false

	existingHash := tokens.EmptyHash
	if exists {
		existingHash = tokens.Hash(existing)
	}
	if ifMatch != "" && ifMatch != existingHash {
		metrics.PreconditionFailuresTotal.Inc()
		return MutationResult{}, false, preconditionErr(name, ifMatch, existingHash)
	}

	newRecord := tokens.Record{Params: proposed.Params, Metadata: newMeta, Previous: existing.Previous}

	if !admin && exists && tokens.SameEditable(newRecord, existing) {
		return MutationResult{Record: existing, ETag: existingHash, Message: "No changes detected for " + name, NoOp: true}, false, nil
	}

	oldOwner := existing.Metadata.Owner
	ownerChanged := exists && oldOwner != "" && oldOwner != newMeta.Owner

	if !admin && r.cfg.DefaultQuota > 0 && (!exists || ownerChanged) {
		if err := r.checkQuota(newMeta.Owner, name); err != nil {
			return MutationResult{}, false, err
		}
	}

	if exists {
		newRecord = newRecord.WithHistory(existing.Snapshot(), r.cfg.HistoryLimit)
	}

	if err := r.saveRecord(name, newRecord); err != nil {
		return MutationResult{}, false, err
	}

	newHash := tokens.Hash(newRecord)
	if err := r.updateShards(name, oldOwner, newMeta.Owner, ownerChanged, newHash, false, newMeta.LastUpdateTime); err != nil {
		return MutationResult{}, false, err
	}

	r.broadcast(PeerRefresh{Token: name, Owner: newMeta.Owner})
	if exists {
		r.publish(events.EventTokenUpdated, name, newMeta.Owner)
	} else {
		r.publish(events.EventTokenCreated, name, newMeta.Owner)
	}

	msg := "updated " + name
	if !exists {
		msg = "created " + name
	}
	mutationLogger := log.WithOwner(log.WithToken(r.log, name), newMeta.Owner)
	mutationLogger.Info().Msg(msg)
	return MutationResult{Record: newRecord, ETag: newHash, Message: msg}, !exists, nil
}

func (r *Registry) authorize(user, name string, admin, exists bool, existingMeta tokens.Metadata, proposedOwner, runAsUser, ifMatch string) error {
	if admin {
		md := tokenauthz.Metadata{Owner: existingMeta.Owner}
		if !exists {
			md.Owner = proposedOwner
		}
		if err := r.authz.AdministerToken(user, name, md); err != nil {
			return authorizationErr(name, err)
		}
		if exists && ifMatch == "" {
			return validationErr(name, "admin-mode update of an existing token requires If-Match")
		}
		return nil
	}

	if runAsUser != "" && runAsUser != "*" {
		if err := r.authz.RunAs(user, runAsUser); err != nil {
			return authorizationErr(name, err)
		}
	}

	if exists && existingMeta.Owner != "" && existingMeta.Owner != proposedOwner {
		if err := r.authz.ManageToken(user, name, tokenauthz.Metadata{Owner: existingMeta.Owner}); err != nil {
			return authorizationErr(name, err)
		}
		return nil
	}

	if !exists || existingMeta.Owner == "" {
		if err := r.authz.RunAs(user, proposedOwner); err != nil {
			return authorizationErr(name, err)
		}
	}
	return nil
}

func (r *Registry) checkQuota(owner, excludeToken string) error {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return internalErr(excludeToken, "load directory for quota check: %v", err)
	}
	key, ok := dir[owner]
	if !ok {
		return nil
	}
	shard, err := tokenindex.LoadShard(r.store, key, false)
	if err != nil {
		return internalErr(excludeToken, "load shard for quota check: %v", err)
	}
	count := 0
	for tok, e := range shard {
		if tok == excludeToken {
			continue
		}
		if !e.Deleted {
			count++
		}
	}
	if count >= r.cfg.DefaultQuota {
		metrics.QuotaRejectionsTotal.Inc()
		return quotaErr(excludeToken, owner, r.cfg.DefaultQuota)
	}
	return nil
}

// updateShards writes newOwner's shard entry for token and, when
// ownerChanged, removes the entry from oldOwner's shard. Token record
// write happens before this call so a stale peer observing the new
// shard entry can always fetch the fresh record.
func (r *Registry) updateShards(token, oldOwner, newOwner string, ownerChanged bool, hash string, deleted bool, lastUpdate time.Time) error {
	dir, err := tokenindex.LoadDirectory(r.store, false)
	if err != nil {
		return internalErr(token, "load directory: %v", err)
	}

	dir, newKey, err := tokenindex.EnsureOwnerKey(r.store, dir, newOwner)
	if err != nil {
		return internalErr(token, "ensure owner key for %q: %v", newOwner, err)
	}

	newShard, err := tokenindex.LoadShard(r.store, newKey, false)
	if err != nil {
		return internalErr(token, "load shard %q: %v", newKey, err)
	}
	newShard[token] = tokenindex.MakeIndexEntry(hash, deleted, lastUpdate)
	if err := tokenindex.SaveShard(r.store, newKey, newShard); err != nil {
		return internalErr(token, "save shard %q: %v", newKey, err)
	}

	if ownerChanged {
		oldKey, ok := dir[oldOwner]
		if ok {
			oldShard, err := tokenindex.LoadShard(r.store, oldKey, false)
			if err != nil {
				return internalErr(token, "load old shard %q: %v", oldKey, err)
			}
			delete(oldShard, token)
			if err := tokenindex.SaveShard(r.store, oldKey, oldShard); err != nil {
				return internalErr(token, "save old shard %q: %v", oldKey, err)
			}
		}
	}
	return nil
}
