package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/fitness-tracker/internal/aggregate"
	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/reconcile"
	"github.com/example/fitness-tracker/internal/sensor"
	"github.com/example/fitness-tracker/internal/store"
)

// Aggregator runs one aggregation cycle for a user.
type Aggregator interface {
	AggregateAll(ctx context.Context, userID string) (aggregate.Bundle, error)
}

// Persister reconciles cycle output against the remote store.
type Persister interface {
	PersistBundle(ctx context.Context, bundle aggregate.Bundle) error
	UpsertLeaderboardEntry(ctx context.Context, now time.Time, entry leaderboard.Entry) error
	LoadWeeklyEntries(ctx context.Context, now time.Time) ([]leaderboard.Entry, error)
	AppendWorkout(ctx context.Context, userID string, workout map[string]any, when time.Time) error
}

// PreferenceCache stores session-local values that survive restarts.
type PreferenceCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	SetInt(ctx context.Context, key string, value int) error
	SetTime(ctx context.Context, key string, value time.Time) error
}

// Ranker computes leaderboard rankings.
type Ranker interface {
	Rank(ctx context.Context, entries []leaderboard.Entry, currentUserID string) (leaderboard.Ranking, error)
}

// ProfileNames resolves and updates display names.
type ProfileNames interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	SetDisplayName(ctx context.Context, userID, name string) error
}

// HealthServiceDeps wires the collaborators of a HealthService.
type HealthServiceDeps struct {
	Aggregator  Aggregator
	Persister   Persister
	Store       store.Store
	Preferences PreferenceCache
	Ranker      Ranker
	Profiles    ProfileNames
	Calculator  *calendar.Calculator
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// HealthService orchestrates aggregation cycles, remote reconciliation, and
// dashboard reads for a signed-in session. Each user's in-flight cycle is
// tracked so sign-out can cancel it before stale data is written.
type HealthService struct {
	aggregator  Aggregator
	persister   Persister
	store       store.Store
	preferences PreferenceCache
	ranker      Ranker
	profiles    ProfileNames
	calc        *calendar.Calculator
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*cycleSession
}

// cycleSession tracks one in-flight aggregation cycle. Concurrent triggers
// for the same user join the session and share its result instead of running
// a second persist, so each cycle writes the remote store exactly once.
type cycleSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result CycleResult
	err    error
}

// NewHealthService wires dependencies for health operations.
func NewHealthService(deps HealthServiceDeps) *HealthService {
	if deps.Calculator == nil {
		deps.Calculator = calendar.NewCalculator(nil)
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &HealthService{
		aggregator:  deps.Aggregator,
		persister:   deps.Persister,
		store:       deps.Store,
		preferences: deps.Preferences,
		ranker:      deps.Ranker,
		profiles:    deps.Profiles,
		calc:        deps.Calculator,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

// RunCycle performs one full aggregation cycle: fan out the metric queries,
// join, persist the bundle once, and refresh the user's weekly leaderboard
// entry. The returned bundle is valid even when remote persistence fails;
// the result is then marked unsynced instead of being rolled back, because
// the caller has already rendered it optimistically.
func (s *HealthService) RunCycle(ctx context.Context, userID string) (CycleResult, error) {
	if s == nil || s.aggregator == nil {
		return CycleResult{}, fmt.Errorf("health service not configured")
	}

	logger := serviceLogger(ctx, s.logger, "health", "run_cycle", "user_id", userID)

	session, owner := s.registerCycle(ctx, userID)
	if !owner {
		// Another trigger owns this user's cycle. Wait for it and share its
		// result; only the owner persists and unregisters.
		select {
		case <-session.done:
			return session.result, session.err
		case <-ctx.Done():
			return CycleResult{}, ctx.Err()
		}
	}

	result, err := s.executeCycle(ctx, session.ctx, logger, userID)
	s.finishCycle(userID, session, result, err)
	return result, err
}

// executeCycle runs the owned cycle body. The cycle context is cancelled by
// sign-out; the caller context carries the request logger and stays live for
// marker writes even when the cycle itself was cancelled.
func (s *HealthService) executeCycle(ctx, cycleCtx context.Context, logger *slog.Logger, userID string) (CycleResult, error) {
	bundle, err := s.aggregator.AggregateAll(cycleCtx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "aggregation cycle failed", "error", err, "kind", ErrorKind(err))
		return CycleResult{}, err
	}
	if !bundle.Complete() {
		// One notice for the whole cycle, not one per metric.
		logger.WarnContext(ctx, "aggregation cycle partially failed",
			"failed_cells", len(bundle.Failures), "error", bundle.Failures[0].Err)
	}

	result := CycleResult{Bundle: bundle}

	if err := s.persistCycle(cycleCtx, bundle); err != nil {
		logger.ErrorContext(ctx, "remote persist failed, keeping local state",
			"error", err, "kind", ErrorKind(err))
		result.Unsynced = true
		s.markUnsynced(ctx, userID)
		return result, nil
	}

	s.clearUnsynced(ctx, userID)
	return result, nil
}

// persistCycle writes the bundle and the weekly leaderboard entry. It runs
// exactly once per cycle, after the join barrier.
func (s *HealthService) persistCycle(ctx context.Context, bundle aggregate.Bundle) error {
	if err := s.persister.PersistBundle(ctx, bundle); err != nil {
		return err
	}

	weekSteps, ok := bundle.Summary(sensor.MetricSteps, calendar.KindWeek)
	if !ok {
		// The steps query failed this cycle; leave the stored entry alone.
		return nil
	}

	entry := leaderboard.Entry{
		UserID:      bundle.UserID,
		DisplayName: s.displayNameOrID(ctx, bundle.UserID),
		Count:       weekSteps.Total,
	}
	return s.persister.UpsertLeaderboardEntry(ctx, bundle.GeneratedAt, entry)
}

// Leaderboard ranks the current weekly partition for the requesting user.
// The partition is computed from now at call time, so a session that spans
// a Monday midnight starts reading the fresh week.
func (s *HealthService) Leaderboard(ctx context.Context, userID string) (leaderboard.Ranking, error) {
	entries, err := s.persister.LoadWeeklyEntries(ctx, s.now())
	if err != nil {
		return leaderboard.Ranking{}, err
	}
	return s.ranker.Rank(ctx, entries, userID)
}

// Snapshot reads the user's persisted summary document.
func (s *HealthService) Snapshot(ctx context.Context, userID string) (SnapshotView, error) {
	doc, err := s.store.Get(ctx, reconcile.SnapshotCollection, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SnapshotView{}, ErrNotFound
		}
		return SnapshotView{}, err
	}

	view := SnapshotView{UserID: userID, Fields: doc.Fields}
	if raw, ok := doc.Fields["generatedAt"].(string); ok {
		if parsed, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			view.GeneratedAt = parsed
		}
	}
	return view, nil
}

// Chart reads the persisted series for a (metric, window) pair and attaches
// axis labels computed from the current date.
func (s *HealthService) Chart(ctx context.Context, userID string, metric sensor.Metric, kind calendar.Kind) (ChartView, error) {
	id := fmt.Sprintf("%s-%s-%s", userID, metric, kind)
	doc, err := s.store.Get(ctx, reconcile.ChartCollection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChartView{}, ErrNotFound
		}
		return ChartView{}, err
	}

	view := ChartView{
		Metric:  metric.String(),
		Window:  kind.String(),
		Total:   intField(doc.Fields, "total"),
		Average: intField(doc.Fields, "average"),
		Values:  intSliceField(doc.Fields, "values"),
	}

	ref := s.now()
	switch kind {
	case calendar.KindWeek:
		view.Labels = s.calc.LastNDayLabels(ref, 7)
	case calendar.KindMonth:
		view.Labels = s.calc.MonthDayLabels(ref)
	case calendar.KindYear:
		view.Labels = s.calc.Last12MonthLabels(ref)
	}
	return view, nil
}

// UpdateGoals merge-writes the user's goal fields onto the snapshot
// document and mirrors them to the preference cache so they survive a
// restart without a remote read.
func (s *HealthService) UpdateGoals(ctx context.Context, userID string, goals Goals) error {
	vErr := &ValidationError{}
	if goals.Steps < 0 {
		vErr.add("steps", "goal must not be negative")
	}
	if goals.Calories < 0 {
		vErr.add("calories", "goal must not be negative")
	}
	if goals.Active < 0 {
		vErr.add("active", "goal must not be negative")
	}
	if goals.Stand < 0 {
		vErr.add("stand", "goal must not be negative")
	}
	if vErr.HasErrors() {
		return vErr
	}

	fields := map[string]any{
		"stepsGoal":    goals.Steps,
		"caloriesGoal": goals.Calories,
		"activeGoal":   goals.Active,
		"standGoal":    goals.Stand,
	}
	if err := s.store.Set(ctx, reconcile.SnapshotCollection, userID, fields, true); err != nil {
		return err
	}

	for key, value := range map[string]int{
		"steps": goals.Steps, "calories": goals.Calories,
		"active": goals.Active, "stand": goals.Stand,
	} {
		if err := s.preferences.SetInt(ctx, goalKey(userID, key), value); err != nil {
			serviceLogger(ctx, s.logger, "health", "update_goals", "user_id", userID).
				WarnContext(ctx, "failed to mirror goal to preference cache", "error", err)
			break
		}
	}
	return nil
}

// Goals reads the goal fields from the snapshot document. Absent fields
// read as zero.
func (s *HealthService) Goals(ctx context.Context, userID string) (Goals, error) {
	doc, err := s.store.Get(ctx, reconcile.SnapshotCollection, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Goals{}, nil
		}
		return Goals{}, err
	}
	return Goals{
		Steps:    intField(doc.Fields, "stepsGoal"),
		Calories: intField(doc.Fields, "caloriesGoal"),
		Active:   intField(doc.Fields, "activeGoal"),
		Stand:    intField(doc.Fields, "standGoal"),
	}, nil
}

// RecordWorkout validates and appends a workout to the monthly history.
func (s *HealthService) RecordWorkout(ctx context.Context, userID string, input WorkoutInput) (Workout, error) {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Type) == "" {
		vErr.add("type", "workout type is required")
	}
	if input.Minutes <= 0 {
		vErr.add("minutes", "duration must be positive")
	}
	if input.Calories < 0 {
		vErr.add("calories", "calories must not be negative")
	}
	if vErr.HasErrors() {
		return Workout{}, vErr
	}

	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}

	workout := Workout{
		ID:        s.idGenerator(),
		Type:      strings.TrimSpace(input.Type),
		Minutes:   input.Minutes,
		Calories:  input.Calories,
		StartedAt: startedAt,
	}
	record := map[string]any{
		"id":        workout.ID,
		"type":      workout.Type,
		"minutes":   workout.Minutes,
		"calories":  workout.Calories,
		"startedAt": workout.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.persister.AppendWorkout(ctx, userID, record, startedAt); err != nil {
		return Workout{}, err
	}
	return workout, nil
}

// Rename updates the user's display name. Historical leaderboard entries
// are left untouched; the new name appears on the next rank computation.
func (s *HealthService) Rename(ctx context.Context, userID, name string) error {
	if s.profiles == nil {
		return fmt.Errorf("profile directory not configured")
	}
	return s.profiles.SetDisplayName(ctx, userID, name)
}

// SignOut cancels the user's in-flight aggregation cycle, if any, so a
// no-longer-current session cannot write stale data.
func (s *HealthService) SignOut(userID string) {
	s.mu.Lock()
	session, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()
	if ok {
		session.cancel()
	}
}

// registerCycle returns the user's in-flight session and whether the caller
// created it. Only the creating caller runs the cycle; everyone else waits
// on the session's done channel.
func (s *HealthService) registerCycle(ctx context.Context, userID string) (*cycleSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*cycleSession)
	}
	if session, exists := s.sessions[userID]; exists {
		return session, false
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	session := &cycleSession{ctx: cycleCtx, cancel: cancel, done: make(chan struct{})}
	s.sessions[userID] = session
	return session, true
}

// finishCycle publishes the cycle outcome to joined triggers and releases the
// session. The result fields are written before done is closed, so waiters
// observe them without further locking.
func (s *HealthService) finishCycle(userID string, session *cycleSession, result CycleResult, err error) {
	s.mu.Lock()
	// Sign-out may have removed the session already; only drop our own.
	if s.sessions[userID] == session {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	session.result = result
	session.err = err
	close(session.done)
	session.cancel()
}

func (s *HealthService) displayNameOrID(ctx context.Context, userID string) string {
	if s.profiles == nil {
		return userID
	}
	name, err := s.profiles.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func (s *HealthService) markUnsynced(ctx context.Context, userID string) {
	if err := s.preferences.SetTime(ctx, unsyncedKey(userID), s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to mark snapshot unsynced", "user_id", userID, "error", err)
	}
}

func (s *HealthService) clearUnsynced(ctx context.Context, userID string) {
	if err := s.preferences.Delete(ctx, unsyncedKey(userID)); err != nil {
		s.logger.WarnContext(ctx, "failed to clear unsynced marker", "user_id", userID, "error", err)
		return
	}
	if err := s.preferences.SetTime(ctx, lastCycleKey(userID), s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to record cycle timestamp", "user_id", userID, "error", err)
	}
}

// Unsynced reports whether the user's last cycle failed to persist.
func (s *HealthService) Unsynced(ctx context.Context, userID string) (bool, error) {
	_, ok, err := s.preferences.Get(ctx, unsyncedKey(userID))
	return ok, err
}

func unsyncedKey(userID string) string  { return "unsynced:" + userID }
func lastCycleKey(userID string) string { return "lastCycle:" + userID }
func goalKey(userID, metric string) string {
	return "goal:" + metric + ":" + userID
}

func intField(fields map[string]any, key string) int {
	switch value := fields[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return 0
	}
}

func intSliceField(fields map[string]any, key string) []int {
	switch value := fields[key].(type) {
	case []int:
		out := make([]int, len(value))
		copy(out, value)
		return out
	case []any:
		out := make([]int, 0, len(value))
		for _, item := range value {
			switch number := item.(type) {
			case int:
				out = append(out, number)
			case float64:
				out = append(out, int(number))
			}
		}
		return out
	default:
		return nil
	}
}
