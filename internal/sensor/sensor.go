package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Metric identifies a health metric tracked by the engine.
type Metric int

const (
	// MetricSteps counts steps taken.
	MetricSteps Metric = iota
	// MetricCalories counts active energy burned in kilocalories.
	MetricCalories
	// MetricActiveMinutes counts minutes of exercise.
	MetricActiveMinutes
	// MetricStandHours counts hours with a stand achievement. Unlike the
	// numeric metrics it is derived from categorical samples.
	MetricStandHours
)

// Metrics lists every tracked metric in a stable order.
func Metrics() []Metric {
	return []Metric{MetricSteps, MetricCalories, MetricActiveMinutes, MetricStandHours}
}

// String returns a stable name for the metric.
func (m Metric) String() string {
	switch m {
	case MetricSteps:
		return "steps"
	case MetricCalories:
		return "calories"
	case MetricActiveMinutes:
		return "active"
	case MetricStandHours:
		return "stand"
	default:
		return "unknown"
	}
}

// ParseMetric maps a stable name back to its metric.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "steps":
		return MetricSteps, nil
	case "calories":
		return MetricCalories, nil
	case "active":
		return MetricActiveMinutes, nil
	case "stand":
		return MetricStandHours, nil
	default:
		return 0, fmt.Errorf("sensor: unknown metric %q", name)
	}
}

// IntervalUnit selects the sub-interval size for by-interval queries.
type IntervalUnit int

const (
	// IntervalHour yields one aggregate per hour in the range.
	IntervalHour IntervalUnit = iota
	// IntervalDay yields one aggregate per day in the range.
	IntervalDay
)

// RawSample is a single reading or aggregation bucket returned by a source.
// Samples are ephemeral query output and are never persisted.
type RawSample struct {
	Timestamp time.Time
	Value     float64
}

// CategoricalSample is a discrete reading such as a stand-hour achievement.
type CategoricalSample struct {
	Timestamp time.Time
	Value     int
}

// Discrete values for stand-hour categorical samples.
const (
	// StandHourStood marks an hour in which the user stood.
	StandHourStood = 0
	// StandHourIdle is the non-achieved sentinel.
	StandHourIdle = 1
)

// Scope names a permission requested from the data source.
type Scope string

// Scopes requested at session start.
const (
	ScopeSteps   Scope = "steps"
	ScopeEnergy  Scope = "energy"
	ScopeActive  Scope = "active"
	ScopeStand   Scope = "stand"
	ScopeWorkout Scope = "workout"
)

var (
	// ErrPermissionDenied indicates the user has not granted access to the
	// requested scope.
	ErrPermissionDenied = errors.New("sensor: permission denied")
	// ErrUnavailable indicates the underlying data source cannot answer
	// queries right now.
	ErrUnavailable = errors.New("sensor: data source unavailable")
)

// AccessError wraps a source failure with the metric and operation that
// produced it. Callers surface it as a single dismissible notice and never
// substitute zero for the missing value.
type AccessError struct {
	Metric Metric
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("sensor: %s query for %s failed: %v", e.Op, e.Metric, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is checks.
func (e *AccessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Source answers time-ranged statistical queries against a sensor data
// backend. Ranges are half-open: start inclusive, end exclusive.
type Source interface {
	// Authorize requests read access for the provided scopes.
	Authorize(ctx context.Context, scopes []Scope) error
	// QueryCumulative returns a single aggregate for the whole range.
	QueryCumulative(ctx context.Context, metric Metric, start, end time.Time) (float64, error)
	// QueryCumulativeByInterval returns one aggregate per sub-interval.
	QueryCumulativeByInterval(ctx context.Context, metric Metric, start, end time.Time, unit IntervalUnit) ([]RawSample, error)
	// QueryCategoricalSamples enumerates discrete samples in the range.
	QueryCategoricalSamples(ctx context.Context, metric Metric, start, end time.Time) ([]CategoricalSample, error)
}
