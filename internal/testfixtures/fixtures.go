package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/sensor"
)

var entryCounter uint64

var referenceTime = time.Date(2024, time.March, 13, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls midweek so day, week, and month windows all contain it without
// touching a partition boundary.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Leaderboard fixtures ---------------------------

// EntryOption configures a generated leaderboard entry.
type EntryOption func(*leaderboard.Entry)

// NewEntryFixture returns a deterministic leaderboard entry with optional
// overrides. Successive calls yield strictly decreasing counts so a slice of
// fresh fixtures is already ranked.
func NewEntryFixture(opts ...EntryOption) leaderboard.Entry {
	idx := atomic.AddUint64(&entryCounter, 1)
	entry := leaderboard.Entry{
		UserID:      fmt.Sprintf("user-%03d", idx),
		DisplayName: fmt.Sprintf("User %03d", idx),
		Count:       1_000_000 - int(idx)*1000,
	}
	for _, opt := range opts {
		opt(&entry)
	}
	return entry
}

// WithEntryUserID overrides the generated user ID.
func WithEntryUserID(id string) EntryOption {
	return func(e *leaderboard.Entry) {
		e.UserID = id
	}
}

// WithEntryDisplayName overrides the generated display name.
func WithEntryDisplayName(name string) EntryOption {
	return func(e *leaderboard.Entry) {
		e.DisplayName = name
	}
}

// WithEntryCount overrides the generated step count.
func WithEntryCount(count int) EntryOption {
	return func(e *leaderboard.Entry) {
		e.Count = count
	}
}

// NewEntryFixtures returns n fresh entries in ranked order.
func NewEntryFixtures(n int) []leaderboard.Entry {
	entries := make([]leaderboard.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, NewEntryFixture())
	}
	return entries
}

// ----------------------------- Sample fixtures -----------------------------

// SampleSeries builds cumulative samples starting at start, one per
// interval, carrying the supplied values.
func SampleSeries(start time.Time, interval time.Duration, values ...float64) []sensor.RawSample {
	samples := make([]sensor.RawSample, 0, len(values))
	for i, value := range values {
		samples = append(samples, sensor.RawSample{
			Timestamp: start.Add(time.Duration(i) * interval),
			Value:     value,
		})
	}
	return samples
}

// DailySamples builds one sample per day starting at start.
func DailySamples(start time.Time, values ...float64) []sensor.RawSample {
	samples := make([]sensor.RawSample, 0, len(values))
	for i, value := range values {
		samples = append(samples, sensor.RawSample{
			Timestamp: start.AddDate(0, 0, i),
			Value:     value,
		})
	}
	return samples
}

// StandHourDay builds one categorical sample per hour of the given day.
// Hours listed in stoodHours are marked as stood, all others as idle.
func StandHourDay(day time.Time, stoodHours ...int) []sensor.CategoricalSample {
	stood := make(map[int]bool, len(stoodHours))
	for _, hour := range stoodHours {
		stood[hour] = true
	}
	samples := make([]sensor.CategoricalSample, 0, 24)
	for hour := 0; hour < 24; hour++ {
		value := sensor.StandHourIdle
		if stood[hour] {
			value = sensor.StandHourStood
		}
		samples = append(samples, sensor.CategoricalSample{
			Timestamp: day.Add(time.Duration(hour) * time.Hour),
			Value:     value,
		})
	}
	return samples
}
