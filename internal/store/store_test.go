package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var storeTime = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

func newSQLiteUnderTest(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	pool, err := OpenPool("file:" + path + "?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	st, err := NewSQLiteStore(context.Background(), pool, func() time.Time { return storeTime })
	if err != nil {
		t.Fatalf("failed to initialise store: %v", err)
	}
	return st
}

func storeImplementations(t *testing.T) map[string]func(*testing.T) Store {
	t.Helper()
	return map[string]func(*testing.T) Store{
		"sqlite": newSQLiteUnderTest,
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(func() time.Time { return storeTime })
		},
	}
}

func TestStoreSetAndGet(t *testing.T) {
	t.Parallel()

	for name, build := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := build(t)
			ctx := context.Background()

			fields := map[string]any{"stepsWeekTotal": 8400, "displayName": "Alice"}
			if err := st.Set(ctx, "healthSnapshots", "user-1", fields, false); err != nil {
				t.Fatalf("Set returned error: %v", err)
			}

			doc, err := st.Get(ctx, "healthSnapshots", "user-1")
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			if doc.Fields["displayName"] != "Alice" {
				t.Fatalf("unexpected fields: %v", doc.Fields)
			}
			if !doc.UpdatedAt.Equal(storeTime) {
				t.Fatalf("UpdatedAt = %v, want %v", doc.UpdatedAt, storeTime)
			}
		})
	}
}

func TestStoreMergeSemantics(t *testing.T) {
	t.Parallel()

	for name, build := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := build(t)
			ctx := context.Background()

			seed := map[string]any{"count": 100, "displayName": "Alice"}
			if err := st.Set(ctx, "weeklyEntries", "entry-1", seed, false); err != nil {
				t.Fatalf("seed: %v", err)
			}

			t.Run("merge overlays without dropping fields", func(t *testing.T) {
				if err := st.Set(ctx, "weeklyEntries", "entry-1", map[string]any{"count": 250}, true); err != nil {
					t.Fatalf("merge set: %v", err)
				}
				doc, err := st.Get(ctx, "weeklyEntries", "entry-1")
				if err != nil {
					t.Fatalf("Get returned error: %v", err)
				}
				if got := numeric(doc.Fields["count"]); got != 250 {
					t.Fatalf("count = %v, want 250", got)
				}
				if doc.Fields["displayName"] != "Alice" {
					t.Fatalf("merge dropped displayName: %v", doc.Fields)
				}
			})

			t.Run("replace discards unlisted fields", func(t *testing.T) {
				if err := st.Set(ctx, "weeklyEntries", "entry-1", map[string]any{"count": 300}, false); err != nil {
					t.Fatalf("replace set: %v", err)
				}
				doc, err := st.Get(ctx, "weeklyEntries", "entry-1")
				if err != nil {
					t.Fatalf("Get returned error: %v", err)
				}
				if _, ok := doc.Fields["displayName"]; ok {
					t.Fatalf("replace kept displayName: %v", doc.Fields)
				}
			})

			t.Run("merge into absent document creates it", func(t *testing.T) {
				if err := st.Set(ctx, "weeklyEntries", "entry-2", map[string]any{"count": 10}, true); err != nil {
					t.Fatalf("merge create: %v", err)
				}
				if _, err := st.Get(ctx, "weeklyEntries", "entry-2"); err != nil {
					t.Fatalf("Get after merge create: %v", err)
				}
			})
		})
	}
}

func TestStoreMissingDocument(t *testing.T) {
	t.Parallel()

	for name, build := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := build(t)

			_, err := st.Get(context.Background(), "healthSnapshots", "absent")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			var storeErr *StoreError
			if !errors.As(err, &storeErr) || storeErr.Collection != "healthSnapshots" {
				t.Fatalf("expected wrapped StoreError, got %v", err)
			}
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, build := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := build(t)
			ctx := context.Background()

			if err := st.Set(ctx, "profiles", "user-1", map[string]any{"displayName": "Alice"}, false); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if err := st.Delete(ctx, "profiles", "user-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := st.Delete(ctx, "profiles", "user-1"); err != nil {
				t.Fatalf("second delete must not fail: %v", err)
			}
			if _, err := st.Get(ctx, "profiles", "user-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStoreListOrdersByID(t *testing.T) {
	t.Parallel()

	for name, build := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := build(t)
			ctx := context.Background()

			for _, id := range []string{"charlie", "alice", "bob"} {
				if err := st.Set(ctx, "weeklyEntries", id, map[string]any{"count": 1}, false); err != nil {
					t.Fatalf("seed %s: %v", id, err)
				}
			}

			docs, err := st.List(ctx, "weeklyEntries")
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(docs) != 3 {
				t.Fatalf("expected 3 documents, got %d", len(docs))
			}
			for i, want := range []string{"alice", "bob", "charlie"} {
				if docs[i].ID != want {
					t.Fatalf("docs[%d].ID = %q, want %q", i, docs[i].ID, want)
				}
			}

			empty, err := st.List(ctx, "missingCollection")
			if err != nil {
				t.Fatalf("List empty collection: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected empty slice, got %v", empty)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	wrapped := &StoreError{Op: "set", Collection: "healthSnapshots", ID: "user-1", Err: ErrUnavailable}
	if !IsTransient(wrapped) {
		t.Fatal("wrapped ErrUnavailable must be transient")
	}
	if IsTransient(ErrNotFound) {
		t.Fatal("ErrNotFound must not be transient")
	}
}

// numeric flattens the int/float64 split between the in-memory store and
// JSON round-tripped SQLite values.
func numeric(value any) float64 {
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	default:
		return -1
	}
}
