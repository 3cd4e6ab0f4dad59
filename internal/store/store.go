package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("store: document not found")

// ErrUnavailable indicates the backing store cannot be reached right now.
// Failures wrapping it are considered transient and worth one retry.
var ErrUnavailable = errors.New("store: unavailable")

// StoreError wraps a read or write failure with the document coordinates
// that produced it.
type StoreError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("store: %s %s/%s failed: %v", e.Op, e.Collection, e.ID, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is checks.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether the error is worth a single immediate retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Document is a stored record: a flat field map addressed by collection and
// id. Field values round-trip through JSON, so numbers read back as float64.
type Document struct {
	Collection string
	ID         string
	Fields     map[string]any
	UpdatedAt  time.Time
}

// Clone returns a defensive copy of the document.
func (d Document) Clone() Document {
	fields := make(map[string]any, len(d.Fields))
	for key, value := range d.Fields {
		fields[key] = value
	}
	return Document{
		Collection: d.Collection,
		ID:         d.ID,
		Fields:     fields,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Store is the remote document store contract. Set with merge=true updates
// only the provided fields and preserves the rest; merge=false replaces the
// whole document (an authoritative create).
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]Document, error)
}
