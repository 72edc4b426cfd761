// Package search provides vector retrieval over the document chunk index.
package search

import (
	"context"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// Retriever returns document chunks similar to a query vector.
// Implementations must be safe for concurrent use.
type Retriever interface {
	// Search returns chunks whose similarity to the query vector is at
	// least threshold, ordered most similar first, at most limit items.
	Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]model.SourceMatch, error)

	// Healthy returns nil if the index is reachable, or an error describing the problem.
	Healthy(ctx context.Context) error
}
