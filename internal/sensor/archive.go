package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/store"
)

// Archive is a Source backed by locally recorded samples in SQLite. The
// ingest consumer appends device readings to it, and aggregation cycles
// query it exactly like a remote sensor framework. Authorization always
// succeeds because the archive is session-local.
type Archive struct {
	pool *store.ConnectionPool
	calc *calendar.Calculator
}

// NewArchive binds the archive to the pool and bootstraps its schema.
func NewArchive(ctx context.Context, pool *store.ConnectionPool, calc *calendar.Calculator) (*Archive, error) {
	if calc == nil {
		calc = calendar.NewCalculator(nil)
	}
	schema := `
		CREATE TABLE IF NOT EXISTS sensor_samples (
			metric      TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			value       REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sensor_samples_metric_time
			ON sensor_samples (metric, recorded_at)`
	if _, err := pool.DB().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create sensor_samples table: %w", err)
	}
	return &Archive{pool: pool, calc: calc}, nil
}

// Record appends a numeric reading for a metric.
func (a *Archive) Record(ctx context.Context, metric Metric, recordedAt time.Time, value float64) error {
	_, err := a.pool.DB().ExecContext(ctx,
		"INSERT INTO sensor_samples (metric, recorded_at, value) VALUES (?, ?, ?)",
		metric.String(), recordedAt.UTC().Format(time.RFC3339Nano), value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RecordCategorical appends a discrete reading for a categorical metric.
func (a *Archive) RecordCategorical(ctx context.Context, metric Metric, recordedAt time.Time, value int) error {
	return a.Record(ctx, metric, recordedAt, float64(value))
}

// Authorize implements Source. The local archive needs no permission grant.
func (a *Archive) Authorize(ctx context.Context, scopes []Scope) error {
	return nil
}

// QueryCumulative sums every reading for the metric in [start, end).
func (a *Archive) QueryCumulative(ctx context.Context, metric Metric, start, end time.Time) (float64, error) {
	var total float64
	err := a.pool.DB().QueryRowContext(ctx,
		"SELECT COALESCE(SUM(value), 0) FROM sensor_samples WHERE metric = ? AND recorded_at >= ? AND recorded_at < ?",
		metric.String(), start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return total, nil
}

// QueryCumulativeByInterval sums readings per hour or per day bucket. Only
// populated buckets are returned; gap filling is the normalizer's job.
func (a *Archive) QueryCumulativeByInterval(ctx context.Context, metric Metric, start, end time.Time, unit IntervalUnit) ([]RawSample, error) {
	rows, err := a.queryRange(ctx, metric, start, end)
	if err != nil {
		return nil, err
	}

	sums := make(map[time.Time]float64)
	order := make([]time.Time, 0)
	for _, row := range rows {
		bucket := a.truncate(row.Timestamp, unit)
		if _, seen := sums[bucket]; !seen {
			order = append(order, bucket)
		}
		sums[bucket] += row.Value
	}

	out := make([]RawSample, 0, len(order))
	for _, bucket := range order {
		out = append(out, RawSample{Timestamp: bucket, Value: sums[bucket]})
	}
	return out, nil
}

// QueryCategoricalSamples enumerates discrete readings in [start, end).
func (a *Archive) QueryCategoricalSamples(ctx context.Context, metric Metric, start, end time.Time) ([]CategoricalSample, error) {
	rows, err := a.queryRange(ctx, metric, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]CategoricalSample, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategoricalSample{Timestamp: row.Timestamp, Value: int(row.Value)})
	}
	return out, nil
}

func (a *Archive) queryRange(ctx context.Context, metric Metric, start, end time.Time) ([]RawSample, error) {
	rows, err := a.pool.DB().QueryContext(ctx,
		"SELECT recorded_at, value FROM sensor_samples WHERE metric = ? AND recorded_at >= ? AND recorded_at < ? ORDER BY recorded_at",
		metric.String(), start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	samples := make([]RawSample, 0)
	for rows.Next() {
		var recordedAt string
		var value float64
		if err := rows.Scan(&recordedAt, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt sample timestamp: %w", err)
		}
		samples = append(samples, RawSample{Timestamp: parsed, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return samples, nil
}

func (a *Archive) truncate(t time.Time, unit IntervalUnit) time.Time {
	switch unit {
	case IntervalHour:
		local := t.In(a.calc.Location())
		return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, a.calc.Location())
	default:
		return a.calc.StartOfDay(t)
	}
}
