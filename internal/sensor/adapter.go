package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
)

// DefaultQueryTimeout bounds a single source query. Health-data backends can
// hang, so an expired deadline is reported as an AccessError rather than
// blocking the aggregation cycle.
const DefaultQueryTimeout = 15 * time.Second

// Adapter issues range-bounded queries against a Source, applying a bounded
// timeout per query and converting stand-hour categorical samples into
// per-bucket achievement counts. It is read-only and safe for concurrent use.
type Adapter struct {
	source  Source
	calc    *calendar.Calculator
	timeout time.Duration
}

// NewAdapter wraps the source. A non-positive timeout falls back to
// DefaultQueryTimeout; a nil calculator aligns buckets to the local zone.
func NewAdapter(source Source, calc *calendar.Calculator, timeout time.Duration) *Adapter {
	if calc == nil {
		calc = calendar.NewCalculator(nil)
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Adapter{source: source, calc: calc, timeout: timeout}
}

// Authorize requests read access for every scope the engine consumes.
func (a *Adapter) Authorize(ctx context.Context) error {
	if a == nil || a.source == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.source.Authorize(ctx, []Scope{ScopeSteps, ScopeEnergy, ScopeActive, ScopeStand, ScopeWorkout}); err != nil {
		return &AccessError{Op: "authorize", Err: classify(ctx, err)}
	}
	return nil
}

// Total returns a single cumulative aggregate for the window.
func (a *Adapter) Total(ctx context.Context, metric Metric, window calendar.Window) (float64, error) {
	if a == nil || a.source == nil {
		return 0, &AccessError{Metric: metric, Op: "total", Err: ErrUnavailable}
	}
	if metric == MetricStandHours {
		samples, err := a.Series(ctx, metric, window)
		if err != nil {
			return 0, err
		}
		var total float64
		for _, sample := range samples {
			total += sample.Value
		}
		return total, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	value, err := a.source.QueryCumulative(ctx, metric, window.Start, window.ExclusiveEnd())
	if err != nil {
		return 0, &AccessError{Metric: metric, Op: "total", Err: classify(ctx, err)}
	}
	return value, nil
}

// Series returns one raw sample per populated sub-interval of the window.
// Gaps are left to the normalizer; the adapter never zero-fills. Stand hours
// are derived by counting achieved categorical samples per bucket.
func (a *Adapter) Series(ctx context.Context, metric Metric, window calendar.Window) ([]RawSample, error) {
	if a == nil || a.source == nil {
		return nil, &AccessError{Metric: metric, Op: "series", Err: ErrUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if metric == MetricStandHours {
		samples, err := a.source.QueryCategoricalSamples(ctx, metric, window.Start, window.ExclusiveEnd())
		if err != nil {
			return nil, &AccessError{Metric: metric, Op: "series", Err: classify(ctx, err)}
		}
		return a.countAchieved(samples, window), nil
	}

	unit := IntervalDay
	if window.Kind == calendar.KindDay {
		unit = IntervalHour
	}
	raw, err := a.source.QueryCumulativeByInterval(ctx, metric, window.Start, window.ExclusiveEnd(), unit)
	if err != nil {
		return nil, &AccessError{Metric: metric, Op: "series", Err: classify(ctx, err)}
	}
	return raw, nil
}

// countAchieved folds categorical samples into one count per bucket,
// excluding the non-achieved sentinel.
func (a *Adapter) countAchieved(samples []CategoricalSample, window calendar.Window) []RawSample {
	counts := make(map[time.Time]float64)
	for _, sample := range samples {
		if sample.Value == StandHourIdle {
			continue
		}
		counts[a.bucketStart(sample.Timestamp, window.Kind)]++
	}

	out := make([]RawSample, 0, len(counts))
	for bucket, count := range counts {
		out = append(out, RawSample{Timestamp: bucket, Value: count})
	}
	return out
}

func (a *Adapter) bucketStart(t time.Time, kind calendar.Kind) time.Time {
	switch kind {
	case calendar.KindYear:
		return a.calc.StartOfMonth(t)
	default:
		return a.calc.StartOfDay(t)
	}
}

// classify maps a raw source failure onto the access-error taxonomy. A
// deadline expiry counts as the source being unavailable.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrUnavailable
	}
	return err
}
