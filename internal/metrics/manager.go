// Package metrics collects process counters, gauges, outcomes and timings,
// exposed through dot-importable Metric* helpers.
package metrics

import (
	"database/sql"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MetricsManager is the global metrics manager
type MetricsManager struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
	outcomes map[string]*OutcomeMetric
	timings  map[string]*TimingMetric

	dbMu sync.Mutex
	db   *sql.DB
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = NewManager()
	})
	return instance
}

// NewManager creates an empty, in-memory manager
func NewManager() *MetricsManager {
	return &MetricsManager{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
		outcomes: make(map[string]*OutcomeMetric),
		timings:  make(map[string]*TimingMetric),
	}
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)
	m.mu.Lock()
	m.counters[path] += delta
	m.mu.Unlock()
}

func (m *MetricsManager) IncrementCounter(topic, function string) {
	m.AddCounter(topic, function, 1)
}

func (m *MetricsManager) SetGauge(topic, function string, value int64) {
	path := buildPath(topic, function)
	m.mu.Lock()
	m.gauges[path] = value
	m.mu.Unlock()
}

func (m *MetricsManager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.outcomes[path]
	if !ok {
		o = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = o
	}
	o.Outcomes[outcome]++
	o.Total++
}

func (m *MetricsManager) RecordDuration(topic, function string, d time.Duration) {
	path := buildPath(topic, function)
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timings[path]
	if !ok {
		t = &TimingMetric{Min: d}
		m.timings[path] = t
	}
	t.Count++
	t.Total += d
	t.Last = d
	t.Updated = time.Now()
	if d < t.Min {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
}

// GetSnapshot returns a deep copy of all metrics
func (m *MetricsManager) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Counters: maps.Clone(m.counters),
		Gauges:   maps.Clone(m.gauges),
		Outcomes: make(map[string]OutcomeMetric, len(m.outcomes)),
		Timings:  make(map[string]TimingMetric, len(m.timings)),
	}
	for path, o := range m.outcomes {
		s.Outcomes[path] = OutcomeMetric{Outcomes: maps.Clone(o.Outcomes), Total: o.Total}
	}
	for path, t := range m.timings {
		s.Timings[path] = *t
	}
	return s
}

// Reset clears all in-memory metrics
func (m *MetricsManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.counters)
	clear(m.gauges)
	clear(m.outcomes)
	clear(m.timings)
}
