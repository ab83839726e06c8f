// Package registry implements the token registry's core pipeline: the
// concurrency-safe read/modify/write cycle against the KV store, the
// owner index it maintains alongside every token, and the re-index
// and peer-refresh operations that keep that index coherent.
package registry

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/d3v3l0/waiter/pkg/clustercalc"
	"github.com/d3v3l0/waiter/pkg/events"
	"github.com/d3v3l0/waiter/pkg/log"
	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenkv"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

// Clock returns the current time; mutations use it for last-update-
// time unless an admin-mode write supplies one explicitly. Tests
// inject a fixed clock to make history and hash assertions exact.
type Clock func() time.Time

// Broadcaster fans a peer-refresh message out to sibling replicas. A
// failed send to any one peer must not fail the caller's mutation;
// implementations log and swallow per-peer errors.
type Broadcaster interface {
	Broadcast(msg PeerRefresh)
}

// PeerRefresh is the body of a tokens/refresh broadcast.
type PeerRefresh struct {
	Token string `json:"token,omitempty"`
	Owner string `json:"owner,omitempty"`
	Index bool   `json:"index,omitempty"`
}

// Config bundles the knobs a Registry needs beyond its collaborators.
type Config struct {
	HistoryLimit int
	DefaultQuota int // 0 means unlimited
	GlobalRoot   string
	Reserved     map[string]bool
}

// Registry is the token registry. It owns no network surface of its
// own; pkg/tokenapi adapts it to HTTP.
type Registry struct {
	store   *tokenkv.Store
	locks   *lockTable
	authz   tokenauthz.Authorizer
	cluster clustercalc.Calculator
	clock   Clock
	peers   Broadcaster
	bus     *events.Broker
	cfg     Config
	log     zerolog.Logger
}

// New builds a Registry. peers and bus may be nil; a nil Broadcaster
// means peer-refresh broadcasts are skipped entirely rather than
// attempted against no peers, and a nil bus means no events are
// published.
func New(store *tokenkv.Store, authz tokenauthz.Authorizer, cluster clustercalc.Calculator, clock Clock, peers Broadcaster, bus *events.Broker, cfg Config) *Registry {
	if clock == nil {
		clock = time.Now
	}
	if cfg.Reserved == nil {
		cfg.Reserved = map[string]bool{}
	}
	return &Registry{
		store:   store,
		locks:   newLockTable(),
		authz:   authz,
		cluster: cluster,
		clock:   clock,
		peers:   peers,
		bus:     bus,
		cfg:     cfg,
		log:     log.WithComponent("registry"),
	}
}

// loadRecord fetches and decodes the token record at key, returning a
// zero Record if absent. refresh bypasses the KV adapter's cache.
func (r *Registry) loadRecord(key string, refresh bool) (tokens.Record, bool, error) {
	raw, ok, err := r.store.Get(key, refresh)
	if err != nil {
		return tokens.Record{}, false, internalErr(key, "fetch token: %v", err)
	}
	if !ok {
		return tokens.Record{}, false, nil
	}
	var rec tokens.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return tokens.Record{}, false, internalErr(key, "decode token record: %v", err)
	}
	return rec, true, nil
}

func (r *Registry) saveRecord(key string, rec tokens.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return internalErr(key, "encode token record: %v", err)
	}
	return r.store.Put(key, data)
}

func (r *Registry) broadcast(msg PeerRefresh) {
	if r.peers == nil {
		return
	}
	r.peers.Broadcast(msg)
}

func (r *Registry) publish(typ events.EventType, token, owner string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(&events.Event{Type: typ, Token: token, Owner: owner})
}

// Get fetches a token's current record. ok is false when the token
// has never existed, or when it is soft-deleted and includeDeleted is
// false — the 404-unless-include=deleted rule on GET.
func (r *Registry) Get(name string, refresh bool, includeDeleted bool) (tokens.Record, bool, error) {
	rec, found, err := r.loadRecord(name, refresh)
	if err != nil {
		return tokens.Record{}, false, err
	}
	if !found || rec.Empty() {
		return tokens.Record{}, false, nil
	}
	if rec.Metadata.Deleted && !includeDeleted {
		return tokens.Record{}, false, nil
	}
	return rec, true, nil
}
