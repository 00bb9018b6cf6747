// Package vector provides the similarity index kept alongside the session store.
package vector

import "context"

// Document is one indexed item.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// QueryResult is one similarity match. Numeric metadata comes back as float64.
type QueryResult struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Index defines the similarity index operations.
type Index interface {
	// AddDocuments indexes documents, replacing any with the same ID.
	AddDocuments(ctx context.Context, docs []Document) error

	// DeleteDocuments removes documents by their IDs.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Query returns up to limit documents similar to query. A positive since
	// restricts results to sessions starting at or after that epoch millisecond.
	Query(ctx context.Context, query string, limit int, since int64) ([]QueryResult, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}
