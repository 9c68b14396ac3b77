package metrics

import (
	"time"
)

// Global functions for dot-import usage

// MetricDuration records a duration directly
func MetricDuration(topic, function string, duration time.Duration) {
	GetInstance().RecordDuration(topic, function, duration)
}

// MetricStartAuto begins timing and returns the stop function
func MetricStartAuto(topic, function string) func() {
	start := time.Now()
	return func() {
		GetInstance().RecordDuration(topic, function, time.Since(start))
	}
}

// MetricInc increments a counter by 1
func MetricInc(topic, function string) {
	GetInstance().IncrementCounter(topic, function)
}

// MetricAdd adds a value to a counter
func MetricAdd(topic, function string, delta int64) {
	GetInstance().AddCounter(topic, function, delta)
}

// MetricSet sets a gauge value
func MetricSet(topic, function string, value int64) {
	GetInstance().SetGauge(topic, function, value)
}

// MetricOutcome records a named outcome (success, quota_exceeded, ...)
func MetricOutcome(topic, operation, outcome string) {
	GetInstance().RecordOutcome(topic, operation, outcome)
}
