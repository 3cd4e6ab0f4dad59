package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore implements Store on a SQLite documents table. Field maps are
// serialised as JSON; merge writes overlay the incoming fields onto the
// stored map inside a single transaction.
type SQLiteStore struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewSQLiteStore binds a document store to the pool and bootstraps its
// schema. A nil now falls back to time.Now.
func NewSQLiteStore(ctx context.Context, pool *ConnectionPool, now func() time.Time) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			fields     TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`
	if _, err := pool.DB().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return &SQLiteStore{pool: pool, now: now}, nil
}

// Get retrieves a document by collection and id.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var payload string
	var updatedAt string
	err := s.pool.DB().QueryRowContext(ctx,
		"SELECT fields, updated_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&payload, &updatedAt)
	if err != nil {
		return Document{}, &StoreError{Op: "get", Collection: collection, ID: id, Err: mapSQLiteError(err)}
	}

	doc, err := decodeDocument(collection, id, payload, updatedAt)
	if err != nil {
		return Document{}, &StoreError{Op: "get", Collection: collection, ID: id, Err: err}
	}
	return doc, nil
}

// Set writes a document. With merge=true only the provided fields are
// updated and previously stored fields are preserved; with merge=false the
// stored document is replaced wholesale.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		final := make(map[string]any, len(fields))

		if merge {
			var payload string
			err := tx.QueryRow(
				"SELECT fields FROM documents WHERE collection = ? AND id = ?",
				collection, id,
			).Scan(&payload)
			switch {
			case err == sql.ErrNoRows:
				// Nothing stored yet; the merge degenerates to a create.
			case err != nil:
				return mapSQLiteError(err)
			default:
				if err := json.Unmarshal([]byte(payload), &final); err != nil {
					return fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
				}
			}
		}

		for key, value := range fields {
			final[key] = value
		}

		encoded, err := json.Marshal(final)
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO documents (collection, id, fields, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
			collection, id, string(encoded), s.now().UTC().Format(time.RFC3339Nano),
		)
		return mapSQLiteError(err)
	})
	if err != nil {
		return &StoreError{Op: "set", Collection: collection, ID: id, Err: err}
	}
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return &StoreError{Op: "delete", Collection: collection, ID: id, Err: mapSQLiteError(err)}
	}
	return nil
}

// List returns every document in a collection ordered by id.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		"SELECT id, fields, updated_at FROM documents WHERE collection = ? ORDER BY id", collection)
	if err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: mapSQLiteError(err)}
	}
	defer rows.Close()

	documents := make([]Document, 0)
	for rows.Next() {
		var id, payload, updatedAt string
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, &StoreError{Op: "list", Collection: collection, Err: mapSQLiteError(err)}
		}
		doc, err := decodeDocument(collection, id, payload, updatedAt)
		if err != nil {
			return nil, &StoreError{Op: "list", Collection: collection, ID: id, Err: err}
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: mapSQLiteError(err)}
	}
	return documents, nil
}

func decodeDocument(collection, id, payload, updatedAt string) (Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Document{}, fmt.Errorf("corrupt document: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("corrupt timestamp: %w", err)
	}
	return Document{Collection: collection, ID: id, Fields: fields, UpdatedAt: parsed}, nil
}
