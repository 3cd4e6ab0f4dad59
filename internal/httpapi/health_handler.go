package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/fitness-tracker/internal/application"
	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/sensor"
)

type healthService interface {
	RunCycle(ctx context.Context, userID string) (application.CycleResult, error)
	Snapshot(ctx context.Context, userID string) (application.SnapshotView, error)
	Unsynced(ctx context.Context, userID string) (bool, error)
	Chart(ctx context.Context, userID string, metric sensor.Metric, kind calendar.Kind) (application.ChartView, error)
	Leaderboard(ctx context.Context, userID string) (leaderboard.Ranking, error)
	Goals(ctx context.Context, userID string) (application.Goals, error)
	UpdateGoals(ctx context.Context, userID string, goals application.Goals) error
	RecordWorkout(ctx context.Context, userID string, input application.WorkoutInput) (application.Workout, error)
	Rename(ctx context.Context, userID, name string) error
	SignOut(userID string)
}

// HealthHandler exposes the tracker operations over HTTP.
type HealthHandler struct {
	service   healthService
	responder responder
}

func NewHealthHandler(service healthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{service: service, responder: newResponder(logger)}
}

// Refresh triggers an aggregation cycle and returns the fresh summaries.
func (h *HealthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.service.RunCycle(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCycleResponse(result))
}

// Dashboard returns the persisted snapshot with the unsynced flag.
func (h *HealthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.service.Snapshot(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	unsynced, err := h.service.Unsynced(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, dashboardResponse{
		UserID:      snapshot.UserID,
		Fields:      snapshot.Fields,
		GeneratedAt: formatTime(snapshot.GeneratedAt),
		Unsynced:    unsynced,
	})
}

// Chart returns a persisted series with axis labels.
func (h *HealthHandler) Chart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	metric, err := sensor.ParseMetric(vars["metric"])
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMetric)
		return
	}
	kind, ok := parseWindow(vars["window"])
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWindow)
		return
	}

	view, err := h.service.Chart(r.Context(), userID, metric, kind)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, view)
}

// Leaderboard returns the weekly top performers for the requesting user.
func (h *HealthHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	ranking, err := h.service.Leaderboard(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toLeaderboardResponse(ranking))
}

// Goals returns the stored goal values.
func (h *HealthHandler) Goals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	goals, err := h.service.Goals(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGoalsPayload(goals))
}

// UpdateGoals replaces the stored goal values.
func (h *HealthHandler) UpdateGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var payload goalsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	goals := application.Goals{
		Steps:    payload.Steps,
		Calories: payload.Calories,
		Active:   payload.Active,
		Stand:    payload.Stand,
	}
	if err := h.service.UpdateGoals(r.Context(), userID, goals); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGoalsPayload(goals))
}

// RecordWorkout appends a workout to the monthly history.
func (h *HealthHandler) RecordWorkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var payload workoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input := application.WorkoutInput{
		Type:     payload.Type,
		Minutes:  payload.Minutes,
		Calories: payload.Calories,
	}
	if payload.StartedAt != "" {
		startedAt, err := time.Parse(time.RFC3339, payload.StartedAt)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		input.StartedAt = startedAt
	}

	workout, err := h.service.RecordWorkout(r.Context(), userID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, workoutResponse{
		ID:        workout.ID,
		Type:      workout.Type,
		Minutes:   workout.Minutes,
		Calories:  workout.Calories,
		StartedAt: formatTime(workout.StartedAt),
	})
}

// Rename updates the user's display name.
func (h *HealthHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var payload struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := h.service.Rename(r.Context(), userID, payload.DisplayName); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// SignOut cancels any in-flight cycle for the user.
func (h *HealthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	h.service.SignOut(userID)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *HealthHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return "", false
	}
	return userID, true
}

func parseWindow(value string) (calendar.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "day":
		return calendar.KindDay, true
	case "week":
		return calendar.KindWeek, true
	case "month":
		return calendar.KindMonth, true
	case "year":
		return calendar.KindYear, true
	default:
		return 0, false
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
