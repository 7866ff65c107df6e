// Package performance provides performance tracking for LeadSpring
// attribution operations.
package performance

import (
	"fmt"
	"sync"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g., "postback:ingest", "dispatch:google_ads"
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Completed bool           `json:"completed"`
}

// Complete marks the operation as finished and calculates final metrics
func (m *Marker) Complete() {
	if m.Completed {
		return // Prevent double completion
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers map[string]*Marker
	mu      sync.RWMutex
	started time.Time
	max     int
}

// NewTracker creates a new performance tracker
func NewTracker() *Tracker {
	return &Tracker{
		markers: make(map[string]*Marker),
		started: time.Now(),
		max:     10000,
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation string) *Marker {
	marker := &Marker{
		Operation: operation,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
	}

	markerID := fmt.Sprintf("%s_%d", operation, time.Now().UnixNano())

	t.mu.Lock()
	if len(t.markers) >= t.max {
		t.evictOldestLocked()
	}
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// GetRecentMetrics returns completed markers that finished within the window
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	cutoff := time.Now().Add(-within)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Marker
	for _, m := range t.markers {
		if m.Completed && m.EndTime.After(cutoff) {
			out = append(out, *m)
		}
	}
	return out
}

// GetOverallStats returns aggregate tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completed, failed := 0, 0
	var total time.Duration
	for _, m := range t.markers {
		if !m.Completed {
			continue
		}
		completed++
		total += m.Duration
		if !m.Success {
			failed++
		}
	}

	stats := map[string]any{
		"uptime":     time.Since(t.started).String(),
		"tracked":    len(t.markers),
		"completed":  completed,
		"failed":     failed,
		"avgLatency": "0s",
	}
	if completed > 0 {
		stats["avgLatency"] = (total / time.Duration(completed)).String()
	}
	return stats
}

func (t *Tracker) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, m := range t.markers {
		if oldestID == "" || m.StartTime.Before(oldest) {
			oldestID = id
			oldest = m.StartTime
		}
	}
	if oldestID != "" {
		delete(t.markers, oldestID)
	}
}
