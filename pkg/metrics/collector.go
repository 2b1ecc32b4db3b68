package metrics

import (
	"sync"
	"time"
)

// StatsSource reports raft statistics
type StatsSource interface {
	Stats() map[string]interface{}
}

// Collector periodically copies raft statistics into gauges
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	stats := c.source.Stats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
}
