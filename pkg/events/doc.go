/*
Package events provides an in-memory event broker for the token
registry's internal pub/sub.

The mutation pipeline (pkg/registry) publishes a Token* event after each
commit and an IndexRebuilt event after a re-index run, for observers
such as the serve command's event logger. The metrics collector does
not subscribe (it samples the registry on a ticker), and the
peer-refresh broadcaster is called inline by the pipeline. Delivery is
best-effort and non-blocking: a full subscriber channel drops the event
rather than stalling the publisher, so nothing subscribed here may be
relied on for correctness. The peer-refresh broadcast itself is
mandatory, and is invoked directly by the pipeline in addition to being
published as an event for observability — see pkg/registry/peer.go.

Do:
  - Filter events by Type at the subscriber
  - Start the broker before publishing events

Don't:
  - Block in a subscriber's receive loop
  - Rely on event delivery for correctness; the pipeline's own
    peer-refresh call is the authoritative notification path
*/
package events
