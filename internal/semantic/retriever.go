// Package semantic implements the embedding-based retrieval path against the
// chunk vector store.
package semantic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Retriever embeds a query, runs oversampled nearest-neighbor search, and
// resolves chunk metadata into SemanticHits.
type Retriever struct {
	embedder   embedding.Embedder
	index      vector.Index
	chunks     storage.ChunkStore
	oversample int
	logger     *zap.Logger
}

// NewRetriever creates a semantic retriever. oversample is the candidate-set
// size fetched ahead of reranking and fusion.
func NewRetriever(
	embedder embedding.Embedder,
	index vector.Index,
	chunks storage.ChunkStore,
	oversample int,
	logger *zap.Logger,
) *Retriever {
	if oversample <= 0 {
		oversample = 50
	}
	return &Retriever{
		embedder:   embedder,
		index:      index,
		chunks:     chunks,
		oversample: oversample,
		logger:     logger,
	}
}

// Retrieve returns the oversampled semantic candidates for text, optionally
// restricted to a category. The category filter is a scalar string equality
// against the chunk's stored category, never a comparison against the topics
// list, whose encoding differs and would silently match nothing.
// An absent or empty collection yields an empty list, not an error, so the
// structured path can still answer.
func (r *Retriever) Retrieve(ctx context.Context, text, category string) ([]*models.SemanticHit, error) {
	if text == "" {
		return nil, nil
	}
	if r.index.Size() == 0 {
		r.logger.Debug("vector index empty, semantic path degrades to no hits")
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	results, err := r.index.Search(ctx, queryVec, r.oversample)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]*models.SemanticHit, 0, len(results))
	for _, res := range results {
		chunk, err := r.chunks.GetChunk(ctx, res.ID)
		if err != nil {
			// index and chunk store can briefly disagree mid-reingestion
			r.logger.Debug("skipping unresolvable chunk", zap.String("chunk_id", res.ID), zap.Error(err))
			continue
		}
		if category != "" && chunk.Category != category {
			continue
		}
		hits = append(hits, &models.SemanticHit{
			ChunkID:    chunk.ID,
			Text:       chunk.Content,
			Distance:   1.0 - res.Score,
			DocumentID: chunk.DocumentID,
			Section:    chunk.Section,
			Page:       chunk.Page,
			Topics:     chunk.Topics,
		})
	}
	return hits, nil
}
