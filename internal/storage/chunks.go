package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// ChunkRetriever performs vector retrieval over the chunks table using
// pgvector cosine distance. It serves deployments that keep the chunk
// index in Postgres instead of a dedicated Qdrant collection.
type ChunkRetriever struct {
	db *DB
}

// NewChunkRetriever creates a retriever backed by the chunks table.
func NewChunkRetriever(db *DB) *ChunkRetriever {
	return &ChunkRetriever{db: db}
}

// Search returns chunks with cosine similarity >= threshold, most
// similar first. `<=>` is cosine distance, so similarity = 1 - distance.
func (r *ChunkRetriever) Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]model.SourceMatch, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := r.db.pool.Query(ctx,
		`SELECT id, document_id, content, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search chunks: %w", err)
	}
	defer rows.Close()

	var matches []model.SourceMatch
	for rows.Next() {
		var (
			id int64
			m  model.SourceMatch
		)
		if err := rows.Scan(&id, &m.DocumentID, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("storage: scan chunk: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Healthy returns nil if the database is reachable.
func (r *ChunkRetriever) Healthy(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("storage: chunk index unhealthy: %w", err)
	}
	return nil
}
