// Package vectordb stores processed documents for semantic retrieval.
package vectordb

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("record not found")

// RecordStore persists processed documents keyed by filename.
type RecordStore interface {
	// Upsert stores text and flat metadata under key, replacing any
	// existing record with that key.
	Upsert(ctx context.Context, key, text string, metadata map[string]any) error

	// Get returns the record stored under key.
	Get(ctx context.Context, key string) (Record, error)

	// Delete removes the record stored under key, if any.
	Delete(ctx context.Context, key string) error

	// Search returns the records most similar to query.
	Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error)

	// Count returns the number of stored records.
	Count() int
}

// Record is one stored document.
type Record struct {
	Key      string
	Text     string
	Metadata map[string]string
}

// SearchResult pairs a record with its cosine similarity to the query.
type SearchResult struct {
	Record     Record
	Similarity float32
}

// SearchFilter narrows search results by exact metadata values.
type SearchFilter struct {
	Type string
}
