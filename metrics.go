package go_nrepl

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting nREPL client metrics.
// This interface allows applications to plug in custom metrics implementations
// (e.g., Prometheus, StatsD, custom logging) for production monitoring.
//
// All methods are safe for concurrent use and should be non-blocking.
type MetricsCollector interface {
	// IncrementMessageSent counts an outgoing request by op (e.g. OP_EVAL).
	IncrementMessageSent(op string)

	// IncrementMessageReceived counts an inbound response by the op of the
	// request it answers, or "unmatched" when no request claims it.
	IncrementMessageReceived(op string)

	// SetActiveSessions updates the gauge of currently open sessions.
	SetActiveSessions(count int)

	// SetPendingRequests updates the gauge of requests awaiting "done".
	SetPendingRequests(count int)

	// IncrementError increments the error counter by error type
	// ("network", "protocol", "timeout", "session", "eval").
	IncrementError(errorType string)

	// RecordRequestLatency records the time from send to "done" for op.
	RecordRequestLatency(op string, duration time.Duration)

	// SetConnectionState updates the current connection state.
	SetConnectionState(state string)

	AddBytesSent(bytes uint64)
	AddBytesReceived(bytes uint64)
}

// InMemoryMetrics provides a simple in-memory implementation of MetricsCollector.
// Suitable for development, testing, and applications that want basic metrics
// without external dependencies.
type InMemoryMetrics struct {
	countsMu         sync.RWMutex
	messagesSent     map[string]uint64
	messagesReceived map[string]uint64
	errorsByType     map[string]uint64

	activeSessions  atomic.Int32
	pendingRequests atomic.Int32

	latencyMu     sync.RWMutex
	latencyByType map[string]*latencyStats

	connectionState atomic.Value // stores string

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// latencyStats tracks latency statistics for an op
type latencyStats struct {
	count      uint64
	totalNanos uint64
	minNanos   uint64
	maxNanos   uint64
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) IncrementMessageSent(op string) {
	m.countsMu.Lock()
	m.messagesSent[op]++
	m.countsMu.Unlock()
}

func (m *InMemoryMetrics) IncrementMessageReceived(op string) {
	m.countsMu.Lock()
	m.messagesReceived[op]++
	m.countsMu.Unlock()
}

func (m *InMemoryMetrics) SetActiveSessions(count int) {
	m.activeSessions.Store(int32(count))
}

func (m *InMemoryMetrics) SetPendingRequests(count int) {
	m.pendingRequests.Store(int32(count))
}

func (m *InMemoryMetrics) IncrementError(errorType string) {
	m.countsMu.Lock()
	m.errorsByType[errorType]++
	m.countsMu.Unlock()
}

// RecordRequestLatency records the latency for an op.
func (m *InMemoryMetrics) RecordRequestLatency(op string, duration time.Duration) {
	nanos := uint64(duration.Nanoseconds())

	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	stats := m.latencyByType[op]
	if stats == nil {
		stats = &latencyStats{minNanos: nanos, maxNanos: nanos}
		m.latencyByType[op] = stats
	}

	stats.count++
	stats.totalNanos += nanos
	if nanos < stats.minNanos {
		stats.minNanos = nanos
	}
	if nanos > stats.maxNanos {
		stats.maxNanos = nanos
	}
}

func (m *InMemoryMetrics) SetConnectionState(state string) {
	m.connectionState.Store(state)
}

func (m *InMemoryMetrics) AddBytesSent(bytes uint64) {
	m.bytesSent.Add(bytes)
}

func (m *InMemoryMetrics) AddBytesReceived(bytes uint64) {
	m.bytesReceived.Add(bytes)
}

// Getter methods for programmatic access to metrics

// MessagesSent returns the total count of sent requests for op.
func (m *InMemoryMetrics) MessagesSent(op string) uint64 {
	m.countsMu.RLock()
	defer m.countsMu.RUnlock()
	return m.messagesSent[op]
}

// MessagesReceived returns the total count of received responses for op.
func (m *InMemoryMetrics) MessagesReceived(op string) uint64 {
	m.countsMu.RLock()
	defer m.countsMu.RUnlock()
	return m.messagesReceived[op]
}

func (m *InMemoryMetrics) ActiveSessions() int {
	return int(m.activeSessions.Load())
}

func (m *InMemoryMetrics) PendingRequests() int {
	return int(m.pendingRequests.Load())
}

// Errors returns the total count of errors by type.
func (m *InMemoryMetrics) Errors(errorType string) uint64 {
	m.countsMu.RLock()
	defer m.countsMu.RUnlock()
	return m.errorsByType[errorType]
}

// AllErrors returns a copy of all error counts by type.
func (m *InMemoryMetrics) AllErrors() map[string]uint64 {
	m.countsMu.RLock()
	defer m.countsMu.RUnlock()

	result := make(map[string]uint64, len(m.errorsByType))
	for k, v := range m.errorsByType {
		result[k] = v
	}
	return result
}

// AvgLatency returns the average latency for op.
// Returns 0 if no measurements have been recorded.
func (m *InMemoryMetrics) AvgLatency(op string) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()

	stats := m.latencyByType[op]
	if stats == nil || stats.count == 0 {
		return 0
	}
	return time.Duration(stats.totalNanos / stats.count)
}

func (m *InMemoryMetrics) MinLatency(op string) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()

	if stats := m.latencyByType[op]; stats != nil {
		return time.Duration(stats.minNanos)
	}
	return 0
}

func (m *InMemoryMetrics) MaxLatency(op string) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()

	if stats := m.latencyByType[op]; stats != nil {
		return time.Duration(stats.maxNanos)
	}
	return 0
}

func (m *InMemoryMetrics) ConnectionState() string {
	return m.connectionState.Load().(string)
}

func (m *InMemoryMetrics) BytesSent() uint64 {
	return m.bytesSent.Load()
}

func (m *InMemoryMetrics) BytesReceived() uint64 {
	return m.bytesReceived.Load()
}

// Reset clears all metrics. Useful for testing.
func (m *InMemoryMetrics) Reset() {
	m.countsMu.Lock()
	m.messagesSent = make(map[string]uint64)
	m.messagesReceived = make(map[string]uint64)
	m.errorsByType = make(map[string]uint64)
	m.countsMu.Unlock()

	m.latencyMu.Lock()
	m.latencyByType = make(map[string]*latencyStats)
	m.latencyMu.Unlock()

	m.activeSessions.Store(0)
	m.pendingRequests.Store(0)
	m.connectionState.Store(StateDisconnected.String())
	m.bytesSent.Store(0)
	m.bytesReceived.Store(0)
}
