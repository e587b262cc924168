// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package metrics defines a concurrently-accessible metrics collector.
//
// A *metrics.M value exports methods to track integer counters and maximum
// values. A metric has a caller-assigned string name that is not interpreted
// by the collector except to locate its stored value. A session given a
// collector counts records and payload bytes under the names "recv.records",
// "recv.bytes", "send.records", and "send.bytes", with the largest record
// in each direction tracked as a maximum value under the byte names.
package metrics

import "sync"

// An M collects counters and maximum-value trackers. A nil *M is valid, and
// discards all metrics. The methods of an *M are safe for concurrent use by
// multiple goroutines.
type M struct {
	mu      sync.Mutex
	counter map[string]int64
	maxVal  map[string]int64
}

// New creates a new, empty metrics collector.
func New() *M {
	return &M{counter: make(map[string]int64), maxVal: make(map[string]int64)}
}

// Count adds n to the current value of the counter named, defining the
// counter if it does not already exist.
func (m *M) Count(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.counter[name] += n
	}
}

// SetMaxValue sets the maximum-value tracker named to the greater of n and
// its current value, defining the tracker if it does not already exist.
func (m *M) SetMaxValue(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if n > m.maxVal[name] {
			m.maxVal[name] = n
		}
	}
}

// CountAndSetMax adds n to the current value of the counter named, and also
// updates a maximum-value tracker of the same name in a single step.
func (m *M) CountAndSetMax(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if n > m.maxVal[name] {
			m.maxVal[name] = n
		}
		m.counter[name] += n
	}
}

// A Snapshot is a point-in-time copy of the contents of a collector.
type Snapshot struct {
	Counter map[string]int64 // counters, by name
	MaxVal  map[string]int64 // maximum-value trackers, by name
}

// Snapshot returns an atomic snapshot of the current values of all the
// metrics in m. The snapshot of a nil *M is empty.
func (m *M) Snapshot() Snapshot {
	snap := Snapshot{Counter: make(map[string]int64), MaxVal: make(map[string]int64)}
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		for name, val := range m.counter {
			snap.Counter[name] = val
		}
		for name, val := range m.maxVal {
			snap.MaxVal[name] = val
		}
	}
	return snap
}
