package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/store"
)

func newDirectoryUnderTest() (*Directory, *store.MemoryStore) {
	st := store.NewMemoryStore(func() time.Time {
		return time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	})
	return NewDirectory(st), st
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	t.Run("returns the stored name", func(t *testing.T) {
		t.Parallel()
		directory, st := newDirectoryUnderTest()
		ctx := context.Background()

		if err := st.Set(ctx, Collection, "user-1", map[string]any{"displayName": "Alice", "avatar": "a.png"}, false); err != nil {
			t.Fatalf("seed profile: %v", err)
		}

		name, err := directory.DisplayName(ctx, "user-1")
		if err != nil {
			t.Fatalf("DisplayName returned error: %v", err)
		}
		if name != "Alice" {
			t.Fatalf("name = %q, want Alice", name)
		}
	})

	t.Run("maps missing profiles to ErrProfileNotFound", func(t *testing.T) {
		t.Parallel()
		directory, _ := newDirectoryUnderTest()

		_, err := directory.DisplayName(context.Background(), "nobody")
		if !errors.Is(err, leaderboard.ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestSetDisplayName(t *testing.T) {
	t.Parallel()

	t.Run("merge preserves other profile fields", func(t *testing.T) {
		t.Parallel()
		directory, st := newDirectoryUnderTest()
		ctx := context.Background()

		if err := st.Set(ctx, Collection, "user-1", map[string]any{"displayName": "Alice", "avatar": "a.png"}, false); err != nil {
			t.Fatalf("seed profile: %v", err)
		}

		if err := directory.SetDisplayName(ctx, "user-1", "  Alicia  "); err != nil {
			t.Fatalf("SetDisplayName returned error: %v", err)
		}

		doc, err := st.Get(ctx, Collection, "user-1")
		if err != nil {
			t.Fatalf("read profile: %v", err)
		}
		if doc.Fields["displayName"] != "Alicia" {
			t.Fatalf("displayName = %v, want trimmed Alicia", doc.Fields["displayName"])
		}
		if doc.Fields["avatar"] != "a.png" {
			t.Fatalf("rename dropped avatar field: %v", doc.Fields)
		}
	})

	t.Run("rejects blank names", func(t *testing.T) {
		t.Parallel()
		directory, _ := newDirectoryUnderTest()

		if err := directory.SetDisplayName(context.Background(), "user-1", "   "); err == nil {
			t.Fatal("expected error for blank display name")
		}
	})
}
