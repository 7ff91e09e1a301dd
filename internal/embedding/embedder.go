// Package embedding provides query embedding via an OpenAI-compatible service,
// with a deterministic mock and an LRU cache for repeated query texts.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
