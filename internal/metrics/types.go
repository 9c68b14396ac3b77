package metrics

import "time"

// MetricType tags a persisted row
type MetricType string

const (
	TypeCounter MetricType = "counter"
	TypeGauge   MetricType = "gauge"
	TypeOutcome MetricType = "outcome"
	TypeTiming  MetricType = "timing"
)

// TimingMetric aggregates durations for one path
type TimingMetric struct {
	Count   int64         `json:"count"`
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
	Updated time.Time     `json:"updated"`
}

// Avg returns the mean duration, 0 when nothing was recorded
func (t TimingMetric) Avg() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// OutcomeMetric counts named outcomes of one operation
type OutcomeMetric struct {
	Outcomes map[string]int64 `json:"outcomes"`
	Total    int64            `json:"total"`
}

// Snapshot is a copy of every metric, keyed by "topic/function"
type Snapshot struct {
	Counters map[string]int64
	Gauges   map[string]int64
	Outcomes map[string]OutcomeMetric
	Timings  map[string]TimingMetric
}
