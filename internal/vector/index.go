// Package vector provides the chunk vector index and similarity search.
package vector

import "context"

// Index defines vector storage and nearest-neighbor search over chunk embeddings.
// The engine only searches; Add and Load exist for fixtures and for loading
// the index file produced by the ingestion pipeline.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Load(path string) error
	Save(path string) error
	Size() int
	Close() error
}

// Result is a single nearest-neighbor hit. Score is cosine similarity for
// normalized vectors (higher is closer).
type Result struct {
	ID    string
	Score float64
}
