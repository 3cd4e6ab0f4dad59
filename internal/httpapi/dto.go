package httpapi

import (
	"github.com/example/fitness-tracker/internal/aggregate"
	"github.com/example/fitness-tracker/internal/application"
	"github.com/example/fitness-tracker/internal/leaderboard"
)

type dashboardResponse struct {
	UserID      string         `json:"userId"`
	Fields      map[string]any `json:"fields"`
	GeneratedAt string         `json:"generatedAt,omitempty"`
	Unsynced    bool           `json:"unsynced"`
}

type cycleResponse struct {
	UserID      string       `json:"userId"`
	GeneratedAt string       `json:"generatedAt"`
	Unsynced    bool         `json:"unsynced"`
	Summaries   []summaryDTO `json:"summaries"`
	Failures    []failureDTO `json:"failures,omitempty"`
}

type summaryDTO struct {
	Metric  string `json:"metric"`
	Window  string `json:"window"`
	Total   int    `json:"total"`
	Average int    `json:"average"`
	Values  []int  `json:"values"`
}

type failureDTO struct {
	Metric string `json:"metric"`
	Window string `json:"window"`
	Reason string `json:"reason"`
}

type leaderboardResponse struct {
	Top      []leaderboardEntryDTO `json:"top"`
	Outsider *leaderboardEntryDTO  `json:"outsider,omitempty"`
}

type leaderboardEntryDTO struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
}

type goalsPayload struct {
	Steps    int `json:"steps"`
	Calories int `json:"calories"`
	Active   int `json:"active"`
	Stand    int `json:"stand"`
}

type workoutRequest struct {
	Type      string `json:"type"`
	Minutes   int    `json:"minutes"`
	Calories  int    `json:"calories"`
	StartedAt string `json:"startedAt,omitempty"`
}

type workoutResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Minutes   int    `json:"minutes"`
	Calories  int    `json:"calories"`
	StartedAt string `json:"startedAt"`
}

func toCycleResponse(result application.CycleResult) cycleResponse {
	response := cycleResponse{
		UserID:      result.Bundle.UserID,
		GeneratedAt: formatTime(result.Bundle.GeneratedAt),
		Unsynced:    result.Unsynced,
		Summaries:   make([]summaryDTO, 0, len(result.Bundle.Summaries)),
	}
	for _, summary := range result.Bundle.Summaries {
		response.Summaries = append(response.Summaries, toSummaryDTO(summary))
	}
	for _, failure := range result.Bundle.Failures {
		response.Failures = append(response.Failures, failureDTO{
			Metric: failure.Metric.String(),
			Window: failure.Kind.String(),
			Reason: failure.Err.Error(),
		})
	}
	return response
}

func toSummaryDTO(summary aggregate.Summary) summaryDTO {
	values := make([]int, len(summary.Records))
	for i, record := range summary.Records {
		values[i] = int(record.Value)
	}
	return summaryDTO{
		Metric:  summary.Metric.String(),
		Window:  summary.Kind.String(),
		Total:   summary.Total,
		Average: summary.Average,
		Values:  values,
	}
}

func toLeaderboardResponse(ranking leaderboard.Ranking) leaderboardResponse {
	response := leaderboardResponse{Top: make([]leaderboardEntryDTO, 0, len(ranking.Top))}
	for _, entry := range ranking.Top {
		response.Top = append(response.Top, toEntryDTO(entry))
	}
	if ranking.Outsider != nil {
		outsider := toEntryDTO(*ranking.Outsider)
		response.Outsider = &outsider
	}
	return response
}

func toEntryDTO(entry leaderboard.Entry) leaderboardEntryDTO {
	return leaderboardEntryDTO{
		UserID:      entry.UserID,
		DisplayName: entry.DisplayName,
		Count:       entry.Count,
	}
}

func toGoalsPayload(goals application.Goals) goalsPayload {
	return goalsPayload{
		Steps:    goals.Steps,
		Calories: goals.Calories,
		Active:   goals.Active,
		Stand:    goals.Stand,
	}
}
