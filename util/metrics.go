// util/metrics.go

package util

import (
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
)

// Metric names emitted by the engine and service.
const (
	MetricChecks        = "acl.checks"
	MetricChecksDenied  = "acl.checks.denied"
	MetricCacheHits     = "acl.cache.hits"
	MetricCacheMisses   = "acl.cache.misses"
	MetricGrants        = "acl.grants"
	MetricRevokes       = "acl.revokes"
	MetricUpdates       = "acl.updates"
	MetricBatchChecks   = "acl.batch.checks"
	MetricBatchShards   = "acl.batch.shards"
	MetricInvalidations = "acl.invalidations"
	MetricStoreErrors   = "acl.store.errors"
	MetricStaleServed   = "acl.stale.served"

	TimingCheck = "acl.check.duration"
	TimingGrant = "acl.grant.duration"
	TimingBatch = "acl.batch.duration"
)

// MetricsSink receives counters and timings from the engine. Implementations
// must be fire-and-forget: they never block and never fail the caller.
type MetricsSink interface {
	IncrCounter(name string, delta int64)
	ObserveDuration(name string, d time.Duration)
}

// Metrics is the default in-process sink: counters are kept in memory for
// the stats endpoint and mirrored to the debug log.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

func (m *Metrics) IncrCounter(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) ObserveDuration(name string, d time.Duration) {
	logger.Debug("Timing observed", zap.String("metric", name), zap.Duration("duration", d))
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// NoopMetrics discards everything. Useful in tests.
type NoopMetrics struct{}

func (NoopMetrics) IncrCounter(string, int64)             {}
func (NoopMetrics) ObserveDuration(string, time.Duration) {}
