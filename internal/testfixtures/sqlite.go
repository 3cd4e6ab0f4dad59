package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/prefs"
	"github.com/example/fitness-tracker/internal/sensor"
	"github.com/example/fitness-tracker/internal/store"
)

// SQLiteHarness provides document, preference, and sensor archive storage
// backed by a temporary SQLite database for integration-style tests.
type SQLiteHarness struct {
	Pool        *store.ConnectionPool
	Documents   *store.SQLiteStore
	Preferences *prefs.Cache
	Archive     *sensor.Archive

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file. Callers
// may optionally invoke Close, but the helper also registers a cleanup
// callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB, now func() time.Time) *SQLiteHarness {
	tb.Helper()

	if now == nil {
		now = NewClock(time.Time{}).NowFunc()
	}

	dir := tb.TempDir()
	path := filepath.Join(dir, "tracker.db")

	pool, err := store.OpenPool("file:" + path + "?_foreign_keys=on")
	if err != nil {
		tb.Fatalf("failed to open connection pool: %v", err)
	}

	ctx := context.Background()
	documents, err := store.NewSQLiteStore(ctx, pool, now)
	if err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to initialise document store: %v", err)
	}
	preferences, err := prefs.NewCache(ctx, pool)
	if err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to initialise preference cache: %v", err)
	}
	archive, err := sensor.NewArchive(ctx, pool, calendar.NewCalculator(time.UTC))
	if err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to initialise sensor archive: %v", err)
	}

	harness := &SQLiteHarness{
		Pool:        pool,
		Documents:   documents,
		Preferences: preferences,
		Archive:     archive,
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
