// Package rerank reorders oversampled semantic candidates by task relevance
// rather than raw embedding distance.
package rerank

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Scorer assigns a relevance score in [0,1] to one passage for a query.
type Scorer interface {
	Score(ctx context.Context, query, passage string) (float64, error)
}

// Reranker scores candidates concurrently under a bounded worker pool. The
// pool cap exists to respect the rate limits of the external scoring service.
type Reranker struct {
	scorer  Scorer
	pool    *ants.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewReranker creates a reranker with the given scoring concurrency cap and
// overall time allowance.
func NewReranker(scorer Scorer, concurrency int, timeout time.Duration, logger *zap.Logger) (*Reranker, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}
	return &Reranker{scorer: scorer, pool: pool, timeout: timeout, logger: logger}, nil
}

// Rerank scores each candidate and returns the top-k ordered by relevance,
// ties broken by original distance rank. If scoring cannot complete within
// the time allowance, the raw distance ordering is returned instead: a
// precision/latency tradeoff, not an error.
func (r *Reranker) Rerank(ctx context.Context, query string, hits []*models.SemanticHit, topK int) []*models.RerankedHit {
	if len(hits) == 0 {
		return nil
	}
	if topK <= 0 || topK > len(hits) {
		topK = len(hits)
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scores := make([]float64, len(hits))
	failed := make([]bool, len(hits))
	var wg sync.WaitGroup

	for i := range hits {
		i := i
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			score, err := r.scorer.Score(sctx, query, hits[i].Text)
			if err != nil {
				failed[i] = true
				return
			}
			scores[i] = utils.Clamp(score, 0, 1)
		})
		if err != nil {
			wg.Done()
			failed[i] = true
		}
	}
	wg.Wait()

	for i := range hits {
		if failed[i] {
			r.logger.Warn("rerank scoring incomplete, falling back to distance order",
				zap.Int("candidates", len(hits)))
			return DistanceOrder(hits, topK)
		}
	}

	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b] // original distance rank
	})

	reranked := make([]*models.RerankedHit, 0, topK)
	for _, idx := range order[:topK] {
		reranked = append(reranked, &models.RerankedHit{
			SemanticHit: *hits[idx],
			Relevance:   scores[idx],
		})
	}
	return reranked
}

// Close releases the worker pool.
func (r *Reranker) Close() {
	r.pool.Release()
}

// DistanceOrder converts hits to RerankedHits in their raw distance order,
// deriving relevance from similarity. Used as the rerank fallback and when no
// reranker is wired at all.
func DistanceOrder(hits []*models.SemanticHit, topK int) []*models.RerankedHit {
	if topK <= 0 || topK > len(hits) {
		topK = len(hits)
	}
	reranked := make([]*models.RerankedHit, 0, topK)
	for _, h := range hits[:topK] {
		reranked = append(reranked, &models.RerankedHit{
			SemanticHit: *h,
			Relevance:   utils.Clamp(1.0-h.Distance, 0, 1),
		})
	}
	return reranked
}
