package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates counters for engine operations.
type Metrics struct {
	mu sync.Mutex

	// Counters
	operationTotal  atomic.Int64
	operationFailed atomic.Int64
	cacheHits       atomic.Int64

	// Per-operation metrics keyed by operation name, e.g. "query", "ingest".
	operationMetrics map[string]*OperationMetrics

	// Duration histogram data (simplified for internal use)
	durations    []time.Duration
	maxDurations int
}

// OperationMetrics represents counters for a specific operation.
type OperationMetrics struct {
	executionCount atomic.Int64
	totalDuration  atomic.Int64 // milliseconds
	errorCount     atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000 // Default to keeping last 1000 durations
	}
	return &Metrics{
		operationMetrics: make(map[string]*OperationMetrics),
		durations:        make([]time.Duration, 0, maxDurations),
		maxDurations:     maxDurations,
	}
}

// Global metrics instance.
var globalMetrics = NewMetrics(1000)

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordOperation records an operation invocation.
func (m *Metrics) RecordOperation(operation string) {
	m.operationTotal.Add(1)
	m.getOperationMetrics(operation).executionCount.Add(1)
}

// RecordFailure records a failed operation.
func (m *Metrics) RecordFailure(operation string) {
	m.operationFailed.Add(1)
	m.getOperationMetrics(operation).errorCount.Add(1)
}

// RecordDuration records an operation duration.
func (m *Metrics) RecordDuration(operation string, duration time.Duration) {
	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		// Remove oldest duration (FIFO)
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()

	om := m.getOperationMetrics(operation)
	om.totalDuration.Add(duration.Milliseconds())
}

// RecordCacheHit records a query answered from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// GetOperationTotal returns the total number of operations.
func (m *Metrics) GetOperationTotal() int64 {
	return m.operationTotal.Load()
}

// GetOperationFailed returns the total number of failed operations.
func (m *Metrics) GetOperationFailed() int64 {
	return m.operationFailed.Load()
}

// GetCacheHits returns the total number of cache hits.
func (m *Metrics) GetCacheHits() int64 {
	return m.cacheHits.Load()
}

// GetOperationMetrics returns metrics for a specific operation.
func (m *Metrics) GetOperationMetrics(operation string) *OperationMetrics {
	return m.getOperationMetrics(operation)
}

func (m *Metrics) getOperationMetrics(operation string) *OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.operationMetrics[operation]; !ok {
		m.operationMetrics[operation] = &OperationMetrics{}
	}
	return m.operationMetrics[operation]
}

// GetAverageDuration returns the average duration in milliseconds for an operation.
func (m *Metrics) GetAverageDuration(operation string) int64 {
	om := m.GetOperationMetrics(operation)
	count := om.executionCount.Load()
	if count == 0 {
		return 0
	}
	return om.totalDuration.Load() / count
}

// GetAllOperations returns all operation names that have been recorded.
func (m *Metrics) GetAllOperations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	operations := make([]string, 0, len(m.operationMetrics))
	for operation := range m.operationMetrics {
		operations = append(operations, operation)
	}
	return operations
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.operationTotal.Store(0)
	m.operationFailed.Store(0)
	m.cacheHits.Store(0)

	m.mu.Lock()
	m.operationMetrics = make(map[string]*OperationMetrics)
	m.durations = make([]time.Duration, 0, m.maxDurations)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	operationSnapshots := make(map[string]*OperationMetricsSnapshot, len(m.operationMetrics))
	for operation, om := range m.operationMetrics {
		count := om.executionCount.Load()
		var average int64
		if count > 0 {
			average = om.totalDuration.Load() / count
		}
		operationSnapshots[operation] = &OperationMetricsSnapshot{
			ExecutionCount:  count,
			TotalDuration:   om.totalDuration.Load(),
			ErrorCount:      om.errorCount.Load(),
			AverageDuration: average,
		}
	}

	return &MetricsSnapshot{
		OperationTotal:   m.operationTotal.Load(),
		OperationFailed:  m.operationFailed.Load(),
		CacheHits:        m.cacheHits.Load(),
		OperationMetrics: operationSnapshots,
		DurationCount:    len(m.durations),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	OperationTotal   int64
	OperationFailed  int64
	CacheHits        int64
	OperationMetrics map[string]*OperationMetricsSnapshot
	DurationCount    int
}

// OperationMetricsSnapshot represents counters for a specific operation.
type OperationMetricsSnapshot struct {
	ExecutionCount  int64
	TotalDuration   int64
	ErrorCount      int64
	AverageDuration int64
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.OperationTotal == 0 {
		return 100.0
	}
	return float64(s.OperationTotal-s.OperationFailed) / float64(s.OperationTotal) * 100.0
}
