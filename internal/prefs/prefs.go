// Package prefs is a session-scoped key-value cache for values that should
// survive a process restart without a remote round-trip, such as
// last-applied goal values and the last reset timestamp.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/example/fitness-tracker/internal/store"
)

// Cache stores string preferences in their own SQLite table on the shared
// connection pool.
type Cache struct {
	pool *store.ConnectionPool
}

// NewCache binds the cache to the pool and bootstraps its schema.
func NewCache(ctx context.Context, pool *store.ConnectionPool) (*Cache, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS preferences (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`
	if _, err := pool.DB().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}
	return &Cache{pool: pool}, nil
}

// Get returns the stored value and whether the key exists.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.pool.DB().QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores a value, replacing any previous one.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	_, err := c.pool.DB().ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.pool.DB().ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key); err != nil {
		return fmt.Errorf("prefs: delete %s: %w", key, err)
	}
	return nil
}

// GetInt reads an integer preference.
func (c *Cache) GetInt(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("prefs: corrupt integer for %s: %w", key, err)
	}
	return value, true, nil
}

// SetInt stores an integer preference.
func (c *Cache) SetInt(ctx context.Context, key string, value int) error {
	return c.Set(ctx, key, strconv.Itoa(value))
}

// GetTime reads a timestamp preference.
func (c *Cache) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	value, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("prefs: corrupt timestamp for %s: %w", key, err)
	}
	return value, true, nil
}

// SetTime stores a timestamp preference.
func (c *Cache) SetTime(ctx context.Context, key string, value time.Time) error {
	return c.Set(ctx, key, value.UTC().Format(time.RFC3339Nano))
}
