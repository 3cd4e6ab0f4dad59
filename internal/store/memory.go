package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore provides an in-memory Store implementation with the same merge
// semantics as the SQLite store. It backs tests and ephemeral sessions.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	documents map[string]map[string]Document
}

// NewMemoryStore returns an empty in-memory store. A nil now falls back to
// time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:       now,
		documents: make(map[string]map[string]Document),
	}
}

// Get retrieves a document by collection and id.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[collection][id]
	if !ok {
		return Document{}, &StoreError{Op: "get", Collection: collection, ID: id, Err: ErrNotFound}
	}
	return doc.Clone(), nil
}

// Set writes a document, merging or replacing per the merge flag.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.documents[collection]
	if !ok {
		bucket = make(map[string]Document)
		s.documents[collection] = bucket
	}

	final := make(map[string]any, len(fields))
	if existing, ok := bucket[id]; ok && merge {
		for key, value := range existing.Fields {
			final[key] = value
		}
	}
	for key, value := range fields {
		final[key] = value
	}

	bucket[id] = Document{
		Collection: collection,
		ID:         id,
		Fields:     final,
		UpdatedAt:  s.now(),
	}
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents[collection], id)
	return nil
}

// List returns every document in a collection ordered by id.
func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	documents := make([]Document, 0, len(s.documents[collection]))
	for _, doc := range s.documents[collection] {
		documents = append(documents, doc.Clone())
	}
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].ID < documents[j].ID
	})
	return documents, nil
}
