package application

import (
	"time"

	"github.com/example/fitness-tracker/internal/aggregate"
)

// Goals holds the per-metric daily targets a user has configured.
type Goals struct {
	Steps    int
	Calories int
	Active   int
	Stand    int
}

// WorkoutInput captures caller provided workout fields.
type WorkoutInput struct {
	Type      string
	Minutes   int
	Calories  int
	StartedAt time.Time
}

// Workout is a recorded workout in the per-month history.
type Workout struct {
	ID        string
	Type      string
	Minutes   int
	Calories  int
	StartedAt time.Time
}

// CycleResult is the outcome of one aggregation cycle. The bundle reflects
// the in-memory state the UI renders immediately; Unsynced reports that the
// remote persist failed and the snapshot will be retried on a later cycle.
type CycleResult struct {
	Bundle   aggregate.Bundle
	Unsynced bool
}

// ChartView is a chart-ready series for one (metric, window) pair: dense
// values with matching axis labels.
type ChartView struct {
	Metric  string
	Window  string
	Labels  []string
	Values  []int
	Total   int
	Average int
}

// SnapshotView is the persisted per-user summary document plus goal fields.
type SnapshotView struct {
	UserID      string
	Fields      map[string]any
	GeneratedAt time.Time
}
