package retry

import (
	"sync"
	"sync/atomic"
)

// Stats holds process-wide error counters. It is the only structure mutated
// concurrently by in-flight tool calls, so all increments are atomic or
// lock-guarded. Created once at startup, reset only on process restart.
type Stats struct {
	totalErrors          atomic.Int64
	recoveryAttempts     atomic.Int64
	successfulRecoveries atomic.Int64

	mu         sync.Mutex
	byCategory map[Category]int64
}

// NewStats creates an empty statistics collector.
func NewStats() *Stats {
	return &Stats{byCategory: make(map[Category]int64)}
}

// RecordError counts one failure in the given category.
func (s *Stats) RecordError(cat Category) {
	s.totalErrors.Add(1)
	s.mu.Lock()
	s.byCategory[cat]++
	s.mu.Unlock()
}

// RecordRecoveryAttempt counts one retry of a transient failure.
func (s *Stats) RecordRecoveryAttempt() {
	s.recoveryAttempts.Add(1)
}

// RecordRecovery counts a success that followed at least one failure.
func (s *Stats) RecordRecovery() {
	s.successfulRecoveries.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalErrors          int64              `json:"total_errors"`
	RecoveryAttempts     int64              `json:"recovery_attempts"`
	SuccessfulRecoveries int64              `json:"successful_recoveries"`
	ErrorsByCategory     map[Category]int64 `json:"errors_by_category"`
}

// Snapshot returns a consistent copy of all counters for health reporting.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		TotalErrors:          s.totalErrors.Load(),
		RecoveryAttempts:     s.recoveryAttempts.Load(),
		SuccessfulRecoveries: s.successfulRecoveries.Load(),
		ErrorsByCategory:     make(map[Category]int64),
	}
	s.mu.Lock()
	for cat, n := range s.byCategory {
		snap.ErrorsByCategory[cat] = n
	}
	s.mu.Unlock()
	return snap
}
