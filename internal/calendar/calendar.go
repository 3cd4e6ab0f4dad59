package calendar

import (
	"strconv"
	"time"
)

// Kind identifies the calendar alignment of a window.
type Kind int

const (
	// KindDay covers a single calendar day split into hour buckets.
	KindDay Kind = iota
	// KindWeek covers Monday through Sunday split into day buckets.
	KindWeek
	// KindMonth covers the first through last day of a month.
	KindMonth
	// KindYear covers twelve months ending with the reference month.
	KindYear
)

// String returns a stable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDay:
		return "day"
	case KindWeek:
		return "week"
	case KindMonth:
		return "month"
	case KindYear:
		return "year"
	default:
		return "unknown"
	}
}

// NominalBucketCount returns the fixed divisor used when averaging over a
// window of this kind. The count is nominal: a 28-day February still divides
// by 30 so that averages remain comparable across months.
func (k Kind) NominalBucketCount() int {
	switch k {
	case KindDay:
		return 24
	case KindWeek:
		return 7
	case KindMonth:
		return 30
	case KindYear:
		return 12
	default:
		return 1
	}
}

// Window is a calendar-aligned date range. Start is aligned to the kind's
// boundary (midnight, Monday midnight, or first of month) and End is the
// start of the final bucket, inclusive.
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
}

// ExclusiveEnd returns the first instant after the window, suitable for
// half-open range queries. Windows themselves keep the inclusive last-bucket
// convention everywhere else.
func (w Window) ExclusiveEnd() time.Time {
	switch w.Kind {
	case KindDay:
		return w.End.Add(time.Hour)
	case KindYear:
		return w.End.AddDate(0, 1, 0)
	default:
		return w.End.AddDate(0, 0, 1)
	}
}

// Buckets enumerates every bucket boundary from Start through End ascending.
// Week and month windows yield day boundaries, year windows yield month
// boundaries, and day windows yield hour boundaries.
func (w Window) Buckets() []time.Time {
	buckets := make([]time.Time, 0, w.Kind.NominalBucketCount())
	current := w.Start
	for !current.After(w.End) {
		buckets = append(buckets, current)
		switch w.Kind {
		case KindDay:
			current = current.Add(time.Hour)
		case KindYear:
			current = current.AddDate(0, 1, 0)
		default:
			current = current.AddDate(0, 0, 1)
		}
	}
	return buckets
}

// Calculator derives calendar-aligned windows in a fixed location. All
// methods are pure and total over valid instants.
type Calculator struct {
	location *time.Location
}

// NewCalculator constructs a Calculator that aligns boundaries to the
// provided location. If loc is nil, the system's local zone is used.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{location: loc}
}

// Location returns the zone the calculator aligns to.
func (c *Calculator) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.Local
	}
	return c.location
}

// StartOfDay truncates the reference to local midnight.
func (c *Calculator) StartOfDay(ref time.Time) time.Time {
	local := ref.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

// StartOfWeek returns the most recent Monday midnight at or before the
// reference. Monday is the first day of the week regardless of locale.
func (c *Calculator) StartOfWeek(ref time.Time) time.Time {
	start := c.StartOfDay(ref)
	// In Go, Monday == 1 and Sunday == 0.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

// StartOfMonth returns midnight on the first day of the reference's month.
func (c *Calculator) StartOfMonth(ref time.Time) time.Time {
	local := ref.In(c.Location())
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.Location())
}

// MonthBounds returns the first and last day of the reference's month, both
// at midnight. The end is the last day itself, not the first of the next
// month; callers needing a half-open range use Window.ExclusiveEnd.
func (c *Calculator) MonthBounds(ref time.Time) (time.Time, time.Time) {
	start := c.StartOfMonth(ref)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// DayWindow returns the 24-hour window covering the reference's day.
func (c *Calculator) DayWindow(ref time.Time) Window {
	start := c.StartOfDay(ref)
	return Window{Kind: KindDay, Start: start, End: start.Add(23 * time.Hour)}
}

// WeekWindow returns the Monday-through-Sunday window containing the
// reference.
func (c *Calculator) WeekWindow(ref time.Time) Window {
	start := c.StartOfWeek(ref)
	return Window{Kind: KindWeek, Start: start, End: start.AddDate(0, 0, 6)}
}

// MonthWindow returns the window covering the reference's month.
func (c *Calculator) MonthWindow(ref time.Time) Window {
	start, end := c.MonthBounds(ref)
	return Window{Kind: KindMonth, Start: start, End: end}
}

// YearWindow returns the twelve-month window ending with the reference's
// month, oldest month first.
func (c *Calculator) YearWindow(ref time.Time) Window {
	end := c.StartOfMonth(ref)
	return Window{Kind: KindYear, Start: end.AddDate(0, -11, 0), End: end}
}

// LastNDayLabels returns day-of-month labels for the n days ending on the
// reference's day, oldest first.
func (c *Calculator) LastNDayLabels(ref time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	labels := make([]string, 0, n)
	day := c.StartOfDay(ref).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		labels = append(labels, strconv.Itoa(day.Day()))
		day = day.AddDate(0, 0, 1)
	}
	return labels
}

// MonthDayLabels returns day-of-month labels for every day of the
// reference's month, first through last. The labels line up with the
// buckets of MonthWindow, unlike LastNDayLabels which slides with the
// reference day.
func (c *Calculator) MonthDayLabels(ref time.Time) []string {
	buckets := c.MonthWindow(ref).Buckets()
	labels := make([]string, len(buckets))
	for i, day := range buckets {
		labels[i] = strconv.Itoa(day.Day())
	}
	return labels
}

// Last12MonthLabels returns short month names for the twelve months ending
// with the reference's month, oldest first.
func (c *Calculator) Last12MonthLabels(ref time.Time) []string {
	labels := make([]string, 0, 12)
	month := c.StartOfMonth(ref).AddDate(0, -11, 0)
	for i := 0; i < 12; i++ {
		labels = append(labels, month.Month().String()[:3])
		month = month.AddDate(0, 1, 0)
	}
	return labels
}
