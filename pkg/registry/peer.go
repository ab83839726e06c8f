package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/d3v3l0/waiter/pkg/log"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/tokenindex"
)

// HTTPBroadcaster fans a PeerRefresh out to a fixed set of sibling
// replica base URLs over HTTP. Peer enumeration itself is external;
// callers build the peer list however their deployment discovers
// siblings and pass it in here.
type HTTPBroadcaster struct {
	Peers   []string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPBroadcaster builds a broadcaster posting to peers/tokens/refresh
// on each listed base URL, bounding every single peer call at timeout.
func NewHTTPBroadcaster(peers []string, timeout time.Duration) *HTTPBroadcaster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPBroadcaster{
		Peers:   peers,
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Broadcast sends msg to every peer concurrently. A failed peer is
// logged and otherwise ignored: the caller's own mutation has already
// committed by the time Broadcast runs.
func (b *HTTPBroadcaster) Broadcast(msg PeerRefresh) {
	if len(b.Peers) == 0 {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PeerBroadcastDuration)

	body, err := json.Marshal(msg)
	if err != nil {
		metrics.PeerBroadcastTotal.WithLabelValues("encode-error").Inc()
		return
	}

	done := make(chan bool, len(b.Peers))
	for _, peer := range b.Peers {
		go func(peer string) {
			ok := b.sendOne(peer, body)
			if !ok {
				log.WithComponent("registry").Warn().Str("peer", peer).Msg("peer refresh failed")
			}
			done <- ok
		}(peer)
	}
	for range b.Peers {
		ok := <-done
		if ok {
			metrics.PeerBroadcastTotal.WithLabelValues("ok").Inc()
		} else {
			metrics.PeerBroadcastTotal.WithLabelValues("failed").Inc()
		}
	}
}

func (b *HTTPBroadcaster) sendOne(peer string, body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), b.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+"/tokens/refresh", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// ApplyPeerRefresh is the receiving side of a tokens/refresh call. It
// only ever invalidates cache entries; the next read of any affected
// key goes through to the authoritative KV.
func (r *Registry) ApplyPeerRefresh(msg PeerRefresh) error {
	if msg.Index {
		dir, err := tokenindex.LoadDirectory(r.store, true)
		if err != nil {
			return internalErr("", "peer-refresh: reload directory: %v", err)
		}
		r.store.Invalidate(tokenindex.DirectoryKey)
		for _, key := range dir {
			r.store.Invalidate(key)
		}
		return nil
	}

	if msg.Token != "" {
		r.store.Invalidate(msg.Token)
	}
	if msg.Owner != "" {
		r.store.Invalidate(tokenindex.DirectoryKey)
		dir, err := tokenindex.LoadDirectory(r.store, true)
		if err != nil {
			return internalErr("", "peer-refresh: reload directory: %v", err)
		}
		if key, ok := dir[msg.Owner]; ok {
			r.store.Invalidate(key)
		}
	}
	return nil
}
