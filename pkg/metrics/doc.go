/*
Package metrics provides Prometheus metrics collection and exposition for
the token registry.

Metrics are grouped by the component that emits them: the mutation
pipeline (MutationsTotal, MutationDuration, QuotaRejectionsTotal,
PreconditionFailuresTotal), the owner index (TokensTotal, OwnersTotal),
re-index runs (ReindexDuration, ReindexTokensProcessed), peer refresh
(PeerBroadcastTotal, PeerBroadcastDuration), the KV adapter's read-through
cache (KVCacheHitsTotal), and the HTTP surface (APIRequestsTotal,
APIRequestDuration). All are registered against the default Prometheus
registry at package init and served via Handler(). KVCacheHitsTotal,
APIRequestsTotal and APIRequestDuration are declared and registered
only: nothing in this module records values into them.

# Alerting

Suggested alerts:

  - QuotaRejectionsTotal rate > 0 sustained: an owner is hammering a
    quota they've already hit; usually a client bug, not an attack.
  - PeerBroadcastTotal{outcome="failed"} rate > 0: a peer is
    unreachable; caches on that peer will serve stale reads until it
    recovers or a re-index runs.
  - histogram_quantile(0.95, token_registry_mutation_duration_seconds_bucket) > 1:
    p95 latency regression, usually lock contention on TOKEN_LOCK.
*/
package metrics
