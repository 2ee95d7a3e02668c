package ai

import (
	"sync/atomic"
	"time"
)

// CallKind identifies a provider call type.
type CallKind string

const (
	CallEmbedding  CallKind = "embedding"
	CallGeneration CallKind = "generation"
	CallRerank     CallKind = "rerank"
)

// callCounters accumulates round trips for one call kind.
type callCounters struct {
	calls     atomic.Int64
	failures  atomic.Int64
	latencyMs atomic.Int64
}

// ProviderMetrics aggregates provider round-trip counters by call kind.
// All methods are safe for concurrent use.
type ProviderMetrics struct {
	embedding  callCounters
	generation callCounters
	rerank     callCounters
}

var providerMetrics = &ProviderMetrics{}

// Metrics returns the process-wide provider metrics.
func Metrics() *ProviderMetrics {
	return providerMetrics
}

func (m *ProviderMetrics) counters(kind CallKind) *callCounters {
	switch kind {
	case CallGeneration:
		return &m.generation
	case CallRerank:
		return &m.rerank
	default:
		return &m.embedding
	}
}

// RecordCall records one provider round trip, failed or not.
func (m *ProviderMetrics) RecordCall(kind CallKind, latency time.Duration, err error) {
	c := m.counters(kind)
	c.calls.Add(1)
	c.latencyMs.Add(latency.Milliseconds())
	if err != nil {
		c.failures.Add(1)
	}
}

// CallSnapshot is a point-in-time view of one call kind's counters.
type CallSnapshot struct {
	Calls            int64
	Failures         int64
	TotalLatencyMs   int64
	AverageLatencyMs int64
}

func (c *callCounters) snapshot() CallSnapshot {
	s := CallSnapshot{
		Calls:          c.calls.Load(),
		Failures:       c.failures.Load(),
		TotalLatencyMs: c.latencyMs.Load(),
	}
	if s.Calls > 0 {
		s.AverageLatencyMs = s.TotalLatencyMs / s.Calls
	}
	return s
}

// Snapshot returns current counters for every call kind.
func (m *ProviderMetrics) Snapshot() map[CallKind]CallSnapshot {
	return map[CallKind]CallSnapshot{
		CallEmbedding:  m.embedding.snapshot(),
		CallGeneration: m.generation.snapshot(),
		CallRerank:     m.rerank.snapshot(),
	}
}

// Reset clears all counters.
func (m *ProviderMetrics) Reset() {
	for _, c := range []*callCounters{&m.embedding, &m.generation, &m.rerank} {
		c.calls.Store(0)
		c.failures.Store(0)
		c.latencyMs.Store(0)
	}
}
