// Package telemetry provides process-lifetime metrics collection for
// monitoring the MemoryBank service.
package telemetry

import (
	"sync"
	"time"
)

// Metrics accumulates monotonic operation counters for the lifetime of the
// process. Counters only ever increase; there is no reset short of a
// restart. A single instance is created at startup and passed explicitly to
// the components that perform operations.
type Metrics struct {
	mu               sync.Mutex
	searches         int64
	documentsAdded   int64
	documentsRemoved int64
	errors           int64
	startTime        time.Time
}

// Snapshot is a point-in-time copy of the counters plus derived uptime.
// Reading a snapshot never mutates the underlying counters.
type Snapshot struct {
	Searches         int64         `json:"searches"`
	DocumentsAdded   int64         `json:"documents_added"`
	DocumentsRemoved int64         `json:"documents_removed"`
	Errors           int64         `json:"errors"`
	StartTime        time.Time     `json:"start_time"`
	Uptime           time.Duration `json:"uptime"`
}

// NewMetrics creates a Metrics instance with the start time captured now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordSearch counts one completed search against the engine. The health
// probe's verification search is counted too, since it is a real query.
func (m *Metrics) RecordSearch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
}

// RecordDocumentsAdded counts n documents added in one operation. A batch of
// n increments the counter by n, not by 1.
func (m *Metrics) RecordDocumentsAdded(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documentsAdded += int64(n)
}

// RecordDocumentsRemoved counts n documents removed in one operation.
func (m *Metrics) RecordDocumentsRemoved(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documentsRemoved += int64(n)
}

// RecordError counts one failed operation.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Snapshot returns a copy of the current counters with uptime derived from
// the start time.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Searches:         m.searches,
		DocumentsAdded:   m.documentsAdded,
		DocumentsRemoved: m.documentsRemoved,
		Errors:           m.errors,
		StartTime:        m.startTime,
		Uptime:           time.Since(m.startTime),
	}
}
