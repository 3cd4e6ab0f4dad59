package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
)

type mapDirectory struct {
	names map[string]string
	err   error
}

func (d *mapDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	name, ok := d.names[userID]
	if !ok {
		return "", ErrProfileNotFound
	}
	return name, nil
}

func entriesWithDistinctCounts(n int) []Entry {
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			UserID: fmt.Sprintf("user-%02d", i),
			Count:  1000 - i*10,
		})
	}
	return entries
}

func TestRank_TruncatesAndOrders(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	entries := entriesWithDistinctCounts(15)

	ranking, err := engine.Rank(context.Background(), entries, "")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(ranking.Top) != TopSize {
		t.Fatalf("expected %d entries, got %d", TopSize, len(ranking.Top))
	}
	for i := 1; i < len(ranking.Top); i++ {
		if ranking.Top[i].Count > ranking.Top[i-1].Count {
			t.Fatalf("top not in descending count order at %d", i)
		}
	}
	if ranking.Top[0].UserID != "user-00" {
		t.Fatalf("unexpected leader %q", ranking.Top[0].UserID)
	}
	if ranking.Outsider != nil {
		t.Fatalf("unexpected outsider for anonymous viewer")
	}
}

func TestRank_OutsiderDetection(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	entries := entriesWithDistinctCounts(15)

	t.Run("twelfth highest is surfaced separately", func(t *testing.T) {
		t.Parallel()

		ranking, err := engine.Rank(context.Background(), entries, "user-11")
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if ranking.Outsider == nil {
			t.Fatalf("expected an outsider entry")
		}
		if ranking.Outsider.UserID != "user-11" || ranking.Outsider.Count != 890 {
			t.Fatalf("unexpected outsider %+v", ranking.Outsider)
		}
	})

	t.Run("third highest is not an outsider", func(t *testing.T) {
		t.Parallel()

		ranking, err := engine.Rank(context.Background(), entries, "user-02")
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if ranking.Outsider != nil {
			t.Fatalf("expected no outsider, got %+v", ranking.Outsider)
		}
	})

	t.Run("user absent from entries yields no outsider", func(t *testing.T) {
		t.Parallel()

		ranking, err := engine.Rank(context.Background(), entries, "stranger")
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if ranking.Outsider != nil {
			t.Fatalf("expected no outsider, got %+v", ranking.Outsider)
		}
	})
}

func TestRank_TieBreakIsDeterministic(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	entries := []Entry{
		{UserID: "charlie", Count: 500},
		{UserID: "alice", Count: 500},
		{UserID: "bob", Count: 500},
	}

	ranking, err := engine.Rank(context.Background(), entries, "")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	want := []string{"alice", "bob", "charlie"}
	for i, id := range want {
		if ranking.Top[i].UserID != id {
			t.Fatalf("position %d = %q, want %q", i, ranking.Top[i].UserID, id)
		}
	}
}

func TestRank_ResolvesDisplayNames(t *testing.T) {
	t.Parallel()

	directory := &mapDirectory{names: map[string]string{"user-00": "Renamed Runner"}}
	engine := NewEngine(directory)
	entries := []Entry{
		{UserID: "user-00", DisplayName: "Stale Name", Count: 900},
		{UserID: "user-01", DisplayName: "Kept Name", Count: 800},
	}

	ranking, err := engine.Rank(context.Background(), entries, "")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if ranking.Top[0].DisplayName != "Renamed Runner" {
		t.Fatalf("rename not reflected: %q", ranking.Top[0].DisplayName)
	}
	// Unknown profiles keep the stored name.
	if ranking.Top[1].DisplayName != "Kept Name" {
		t.Fatalf("stored name lost: %q", ranking.Top[1].DisplayName)
	}
}

func TestRank_DirectoryFailureAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("directory offline")
	engine := NewEngine(&mapDirectory{err: boom})

	_, err := engine.Rank(context.Background(), entriesWithDistinctCounts(3), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected directory failure to propagate, got %v", err)
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	entries := []Entry{
		{UserID: "b", Count: 1},
		{UserID: "a", Count: 2},
	}

	if _, err := engine.Rank(context.Background(), entries, ""); err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if entries[0].UserID != "b" {
		t.Fatalf("input slice reordered")
	}
}

func TestPeriodKey(t *testing.T) {
	t.Parallel()

	calc := calendar.NewCalculator(time.UTC)

	cases := []struct {
		name string
		ref  time.Time
		want string
	}{
		{
			name: "midweek reference uses the current monday",
			ref:  time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC),
			want: "2024-03-04-topPerformers",
		},
		{
			name: "sunday belongs to the week that began six days earlier",
			ref:  time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC),
			want: "2024-03-04-topPerformers",
		},
		{
			name: "monday midnight starts a fresh partition",
			ref:  time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
			want: "2024-03-11-topPerformers",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := PeriodKey(calc, tc.ref); got != tc.want {
				t.Fatalf("PeriodKey(%v) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}
}
