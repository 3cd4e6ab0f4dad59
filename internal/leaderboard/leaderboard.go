// Package leaderboard ranks weekly step counts. Entries live in a weekly
// partition keyed by the Monday that starts the period; a fresh partition
// implicitly begins every Monday with no migration of prior-week entries.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
)

// TopSize is the number of entries surfaced on the board.
const TopSize = 10

// Entry is one participant in a weekly period. Identity is the opaque,
// stable UserID; DisplayName is resolved at rank time rather than being
// denormalised at write time, so a rename shows up on the next ranking.
type Entry struct {
	UserID      string
	DisplayName string
	Count       int
}

// Ranking is the rendered board: the top entries in descending count order
// plus, when the requesting user fell below the cutoff, their own entry.
type Ranking struct {
	Top      []Entry
	Outsider *Entry
}

// PeriodKey computes the weekly partition identifier for the reference
// instant. Callers thread an explicit now so week boundaries are testable;
// a session that spans a Monday midnight switches partitions mid-session.
func PeriodKey(calc *calendar.Calculator, now time.Time) string {
	if calc == nil {
		calc = calendar.NewCalculator(nil)
	}
	monday := calc.StartOfWeek(now)
	return fmt.Sprintf("%s-topPerformers", monday.Format("2006-01-02"))
}

// ProfileDirectory resolves display names for ranked users.
type ProfileDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ErrProfileNotFound is returned by directories for unknown users.
var ErrProfileNotFound = errors.New("leaderboard: profile not found")

// Engine ranks entries and joins display names from a profile directory.
type Engine struct {
	profiles ProfileDirectory
}

// NewEngine wires a ranking engine. The directory may be nil, in which case
// entries keep whatever name they arrived with.
func NewEngine(profiles ProfileDirectory) *Engine {
	return &Engine{profiles: profiles}
}

// Rank sorts entries by count descending, breaking ties by userID ascending
// so repeated rankings over the same input are reproducible. The result is
// truncated to TopSize; when currentUserID is present in the input but not
// in the truncated top, its entry is returned separately as the outsider.
func (e *Engine) Rank(ctx context.Context, entries []Entry, currentUserID string) (Ranking, error) {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Count == ordered[j].Count {
			return ordered[i].UserID < ordered[j].UserID
		}
		return ordered[i].Count > ordered[j].Count
	})

	if err := e.resolveNames(ctx, ordered); err != nil {
		return Ranking{}, err
	}

	cutoff := TopSize
	if cutoff > len(ordered) {
		cutoff = len(ordered)
	}

	ranking := Ranking{Top: ordered[:cutoff]}
	for _, entry := range ordered[cutoff:] {
		if entry.UserID == currentUserID {
			outsider := entry
			ranking.Outsider = &outsider
			break
		}
	}
	return ranking, nil
}

// resolveNames overwrites entry names from the directory. Unknown profiles
// keep the stored name; any other lookup failure aborts the ranking.
func (e *Engine) resolveNames(ctx context.Context, entries []Entry) error {
	if e == nil || e.profiles == nil {
		return nil
	}
	for i := range entries {
		name, err := e.profiles.DisplayName(ctx, entries[i].UserID)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				continue
			}
			return fmt.Errorf("resolve display name for %s: %w", entries[i].UserID, err)
		}
		if name != "" {
			entries[i].DisplayName = name
		}
	}
	return nil
}
