// Package normalize turns sparse sensor samples into dense, chart-ready
// bucket sequences. Chart rendering assumes one bar per index with no holes,
// so a window covering N buckets always yields exactly N records.
package normalize

import (
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/sensor"
)

// BucketRecord is one gap-filled bucket of a window. Position is the
// zero-based index into the dense sequence, used only for chart x-axis
// placement.
type BucketRecord struct {
	Date     time.Time
	Value    float64
	Position int
}

// Normalize produces one BucketRecord per calendar bucket of the window in
// ascending date order. Buckets without a matching raw sample carry zero.
// When two samples map to the same bucket the last one encountered wins;
// overwriting rather than summing keeps re-normalization idempotent.
// Normalize never fails: an empty input still yields a full zero-filled
// sequence.
func Normalize(window calendar.Window, samples []sensor.RawSample) []BucketRecord {
	buckets := window.Buckets()

	values := make(map[time.Time]float64, len(samples))
	for _, sample := range samples {
		values[bucketKey(window, sample.Timestamp)] = sample.Value
	}

	records := make([]BucketRecord, len(buckets))
	for i, bucket := range buckets {
		records[i] = BucketRecord{
			Date:     bucket,
			Value:    values[bucket],
			Position: i,
		}
	}
	return records
}

// Total sums the values of a normalized sequence.
func Total(records []BucketRecord) float64 {
	var total float64
	for _, record := range records {
		total += record.Value
	}
	return total
}

// bucketKey aligns a sample timestamp to its window bucket boundary.
func bucketKey(window calendar.Window, t time.Time) time.Time {
	loc := window.Start.Location()
	local := t.In(loc)
	switch window.Kind {
	case calendar.KindDay:
		return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	case calendar.KindYear:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
}
