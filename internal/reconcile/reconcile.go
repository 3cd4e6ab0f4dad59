// Package reconcile upserts locally computed aggregates into the remote
// document store. Writes are merge writes: only the fields a cycle produced
// are touched, so values edited out-of-band (goals, profile fields) are
// preserved.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fitness-tracker/internal/aggregate"
	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/store"
)

// Collections written by the reconciler. Leaderboard entries live in a
// per-week collection computed by leaderboard.PeriodKey.
const (
	SnapshotCollection = "healthSnapshots"
	ChartCollection    = "chartSummaries"
	WorkoutCollection  = "workoutHistory"
)

// Reconciler persists aggregation output. Transient store failures are
// retried exactly once, immediately; anything beyond that is the caller's
// problem to surface, never to roll back in-memory state over.
type Reconciler struct {
	store  store.Store
	calc   *calendar.Calculator
	logger *slog.Logger
}

// New wires a Reconciler.
func New(st store.Store, calc *calendar.Calculator, logger *slog.Logger) *Reconciler {
	if calc == nil {
		calc = calendar.NewCalculator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, calc: calc, logger: logger}
}

// PersistBundle merge-writes the bundle's successful cells: totals and
// averages onto the per-user snapshot document, and one chart document per
// cell. Failed cells are skipped entirely so their previously stored values
// survive; they are never overwritten with zero.
func (r *Reconciler) PersistBundle(ctx context.Context, bundle aggregate.Bundle) error {
	if len(bundle.Summaries) == 0 {
		return nil
	}

	fields := make(map[string]any, len(bundle.Summaries)*2+1)
	for _, summary := range bundle.Summaries {
		prefix := summary.Metric.String() + kindTitle(summary.Kind)
		fields[prefix+"Total"] = summary.Total
		fields[prefix+"Average"] = summary.Average
	}
	fields["generatedAt"] = bundle.GeneratedAt.UTC().Format(time.RFC3339Nano)

	if err := r.setWithRetry(ctx, SnapshotCollection, bundle.UserID, fields, true); err != nil {
		return err
	}

	for _, summary := range bundle.Summaries {
		if err := r.persistChart(ctx, bundle.UserID, summary); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) persistChart(ctx context.Context, userID string, summary aggregate.Summary) error {
	values := make([]int, len(summary.Records))
	for i, record := range summary.Records {
		values[i] = int(record.Value)
	}

	id := fmt.Sprintf("%s-%s-%s", userID, summary.Metric, summary.Kind)
	fields := map[string]any{
		"metric":  summary.Metric.String(),
		"window":  summary.Kind.String(),
		"total":   summary.Total,
		"average": summary.Average,
		"values":  values,
	}
	return r.setWithRetry(ctx, ChartCollection, id, fields, true)
}

// UpsertLeaderboardEntry applies the existence-check-then-branch protocol to
// the current weekly partition: an absent entry is created with the full
// payload as an authoritative write, a present entry gets only its count
// updated so the stored display name and id are never clobbered.
//
// The check-then-write pair is not transactional. Two devices signed into
// the same account can race and lose a create; with a single-writer-per-user
// client that risk is accepted rather than paid for with a transaction.
func (r *Reconciler) UpsertLeaderboardEntry(ctx context.Context, now time.Time, entry leaderboard.Entry) error {
	collection := leaderboard.PeriodKey(r.calc, now)

	_, err := r.store.Get(ctx, collection, entry.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fields := map[string]any{
			"userId":      entry.UserID,
			"displayName": entry.DisplayName,
			"count":       entry.Count,
		}
		return r.setWithRetry(ctx, collection, entry.UserID, fields, false)
	case err != nil:
		return err
	default:
		return r.setWithRetry(ctx, collection, entry.UserID, map[string]any{"count": entry.Count}, true)
	}
}

// LoadWeeklyEntries reads every entry in the weekly partition for the
// reference instant.
func (r *Reconciler) LoadWeeklyEntries(ctx context.Context, now time.Time) ([]leaderboard.Entry, error) {
	documents, err := r.store.List(ctx, leaderboard.PeriodKey(r.calc, now))
	if err != nil {
		return nil, err
	}

	entries := make([]leaderboard.Entry, 0, len(documents))
	for _, doc := range documents {
		entries = append(entries, leaderboard.Entry{
			UserID:      stringField(doc.Fields, "userId", doc.ID),
			DisplayName: stringField(doc.Fields, "displayName", ""),
			Count:       intField(doc.Fields, "count"),
		})
	}
	return entries, nil
}

// AppendWorkout appends a workout record to the user's per-month history
// document.
func (r *Reconciler) AppendWorkout(ctx context.Context, userID string, workout map[string]any, when time.Time) error {
	id := fmt.Sprintf("%s-%s", userID, when.In(r.calc.Location()).Format("2006-01"))

	existing := make([]any, 0)
	doc, err := r.store.Get(ctx, WorkoutCollection, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if stored, ok := doc.Fields["workouts"].([]any); ok {
			existing = stored
		}
	}

	fields := map[string]any{"workouts": append(existing, workout)}
	return r.setWithRetry(ctx, WorkoutCollection, id, fields, true)
}

// setWithRetry performs a merge or replace write with one immediate retry
// for transient failures.
func (r *Reconciler) setWithRetry(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	err := r.store.Set(ctx, collection, id, fields, merge)
	if err == nil {
		return nil
	}
	if !store.IsTransient(err) {
		return err
	}
	r.logger.WarnContext(ctx, "transient store failure, retrying once",
		"collection", collection, "id", id, "error", err)
	return r.store.Set(ctx, collection, id, fields, merge)
}

func kindTitle(kind calendar.Kind) string {
	switch kind {
	case calendar.KindDay:
		return "Day"
	case calendar.KindWeek:
		return "Week"
	case calendar.KindMonth:
		return "Month"
	case calendar.KindYear:
		return "Year"
	default:
		return "Unknown"
	}
}

func stringField(fields map[string]any, key, fallback string) string {
	if value, ok := fields[key].(string); ok {
		return value
	}
	return fallback
}

func intField(fields map[string]any, key string) int {
	switch value := fields[key].(type) {
	case int:
		return value
	case float64:
		// JSON round-trips numbers as float64.
		return int(value)
	default:
		return 0
	}
}
