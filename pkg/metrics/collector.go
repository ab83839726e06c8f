package metrics

import (
	"time"
)

// Source is the subset of the registry a Collector needs to sample gauges.
// Implemented by *registry.Registry; kept as a narrow interface here so
// pkg/metrics does not depend on pkg/registry.
type Source interface {
	OwnerCount() (int, error)
	TokenCounts() (live int, deleted int, err error)
}

// Collector periodically samples registry-wide gauges (TokensTotal,
// OwnersTotal) that are cheap to read but awkward to update inline from
// every call site in the mutation pipeline.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if owners, err := c.source.OwnerCount(); err == nil {
		OwnersTotal.Set(float64(owners))
	}

	if live, deleted, err := c.source.TokenCounts(); err == nil {
		TokensTotal.WithLabelValues("false").Set(float64(live))
		TokensTotal.WithLabelValues("true").Set(float64(deleted))
	}
}
