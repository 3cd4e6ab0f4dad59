// Package aggregate orchestrates the per-cycle fan-out of metric queries.
// Each cycle issues twelve independent range queries (four metrics across
// week, month, and year windows) concurrently, joins on all of them, and
// derives totals and averages from the normalized results.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/normalize"
	"github.com/example/fitness-tracker/internal/sensor"
)

// windowKinds lists the summarised window kinds in a stable order.
var windowKinds = []calendar.Kind{calendar.KindWeek, calendar.KindMonth, calendar.KindYear}

// Summary is the derived result for one (metric, window) pair. Average uses
// the window kind's nominal bucket count with truncating integer division,
// never the count of populated buckets.
type Summary struct {
	Metric  sensor.Metric
	Kind    calendar.Kind
	Total   int
	Average int
	Records []normalize.BucketRecord
}

// Failure marks a (metric, window) query that could not complete. Failed
// cells are reported explicitly rather than being substituted with zero.
type Failure struct {
	Metric sensor.Metric
	Kind   calendar.Kind
	Err    error
}

// Bundle is the complete output of one aggregation cycle. Summaries holds
// the cells that succeeded; Failures the cells that did not.
type Bundle struct {
	UserID      string
	GeneratedAt time.Time
	Summaries   []Summary
	Failures    []Failure
}

// Summary returns the cell for a (metric, kind) pair when it succeeded.
func (b Bundle) Summary(metric sensor.Metric, kind calendar.Kind) (Summary, bool) {
	for _, summary := range b.Summaries {
		if summary.Metric == metric && summary.Kind == kind {
			return summary, true
		}
	}
	return Summary{}, false
}

// Complete reports whether every cell succeeded.
func (b Bundle) Complete() bool {
	return len(b.Failures) == 0
}

// AggregationError reports that an entire cycle failed: no cell produced a
// usable summary.
type AggregationError struct {
	Failures []Failure
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "aggregate: cycle failed"
	}
	cells := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		cells = append(cells, fmt.Sprintf("%s/%s", failure.Metric, failure.Kind))
	}
	return fmt.Sprintf("aggregate: all cells failed: %s", strings.Join(cells, ", "))
}

// Unwrap exposes the first underlying cause for errors.Is checks.
func (e *AggregationError) Unwrap() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

// Querier answers per-window series queries. *sensor.Adapter satisfies it.
type Querier interface {
	Series(ctx context.Context, metric sensor.Metric, window calendar.Window) ([]sensor.RawSample, error)
}

// Aggregator runs aggregation cycles. Overlapping cycles for the same user
// are coalesced: a trigger arriving while a cycle is in flight joins that
// cycle's result instead of starting a second concurrent writer.
type Aggregator struct {
	querier Querier
	calc    *calendar.Calculator
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*cycle
}

type cycle struct {
	done   chan struct{}
	bundle Bundle
	err    error
}

// New wires an Aggregator. A nil calculator aligns to the local zone and a
// nil now falls back to time.Now.
func New(querier Querier, calc *calendar.Calculator, now func() time.Time) *Aggregator {
	if calc == nil {
		calc = calendar.NewCalculator(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		querier:  querier,
		calc:     calc,
		now:      now,
		inflight: make(map[string]*cycle),
	}
}

// AggregateAll runs one cycle for the user: twelve concurrent queries, a
// join barrier, then total/average derivation. A single cell's failure does
// not prevent the remaining cells from completing; the bundle reports the
// succeeded summaries alongside explicit failure markers. An error is
// returned only when the context is cancelled or every cell failed.
func (a *Aggregator) AggregateAll(ctx context.Context, userID string) (Bundle, error) {
	if a == nil || a.querier == nil {
		return Bundle{}, fmt.Errorf("aggregator not configured")
	}

	a.mu.Lock()
	if existing, ok := a.inflight[userID]; ok {
		a.mu.Unlock()
		select {
		case <-existing.done:
			return existing.bundle, existing.err
		case <-ctx.Done():
			return Bundle{}, ctx.Err()
		}
	}
	current := &cycle{done: make(chan struct{})}
	a.inflight[userID] = current
	a.mu.Unlock()

	bundle, err := a.run(ctx, userID)

	current.bundle = bundle
	current.err = err
	close(current.done)

	a.mu.Lock()
	delete(a.inflight, userID)
	a.mu.Unlock()

	return bundle, err
}

type cellResult struct {
	summary Summary
	err     error
}

func (a *Aggregator) run(ctx context.Context, userID string) (Bundle, error) {
	ref := a.now()
	metrics := sensor.Metrics()

	windows := map[calendar.Kind]calendar.Window{
		calendar.KindWeek:  a.calc.WeekWindow(ref),
		calendar.KindMonth: a.calc.MonthWindow(ref),
		calendar.KindYear:  a.calc.YearWindow(ref),
	}

	results := make([]cellResult, len(metrics)*len(windowKinds))

	var wg sync.WaitGroup
	for mi, metric := range metrics {
		for ki, kind := range windowKinds {
			wg.Add(1)
			go func(slot int, metric sensor.Metric, kind calendar.Kind) {
				defer wg.Done()
				results[slot] = a.queryCell(ctx, metric, kind, windows[kind])
			}(mi*len(windowKinds)+ki, metric, kind)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{UserID: userID, GeneratedAt: ref}
	for i, result := range results {
		if result.err != nil {
			bundle.Failures = append(bundle.Failures, Failure{
				Metric: metrics[i/len(windowKinds)],
				Kind:   windowKinds[i%len(windowKinds)],
				Err:    result.err,
			})
			continue
		}
		bundle.Summaries = append(bundle.Summaries, result.summary)
	}

	if len(bundle.Summaries) == 0 && len(bundle.Failures) > 0 {
		return bundle, &AggregationError{Failures: bundle.Failures}
	}
	return bundle, nil
}

func (a *Aggregator) queryCell(ctx context.Context, metric sensor.Metric, kind calendar.Kind, window calendar.Window) cellResult {
	samples, err := a.querier.Series(ctx, metric, window)
	if err != nil {
		return cellResult{err: err}
	}

	records := normalize.Normalize(window, samples)
	total := int(normalize.Total(records))
	return cellResult{summary: Summary{
		Metric:  metric,
		Kind:    kind,
		Total:   total,
		Average: total / kind.NominalBucketCount(),
		Records: records,
	}}
}
