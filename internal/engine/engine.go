// Package engine coordinates hybrid retrieval: parameter extraction, two
// concurrent retrieval paths under independent timeouts, optional reranking,
// and fusion into a single citable result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/structured"
)

var (
	// ErrValidation marks a query rejected before any retrieval ran.
	ErrValidation = errors.New("invalid query")
	// ErrAllPathsFailed marks a query where neither retrieval path produced
	// an outcome. A single failed path is absorbed, never surfaced as this.
	ErrAllPathsFailed = errors.New("all retrieval paths failed")
)

// StructuredRetriever is the deterministic lookup path.
type StructuredRetriever interface {
	Retrieve(ctx context.Context, params models.Params) ([]*models.StructuredHit, error)
}

// SemanticRetriever is the embedding-based lookup path.
type SemanticRetriever interface {
	Retrieve(ctx context.Context, text, category string) ([]*models.SemanticHit, error)
}

// Extractor pulls structured parameters from free text.
type Extractor interface {
	Extract(ctx context.Context, text string) (models.Params, error)
}

// Reranker reorders semantic candidates by task relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []*models.SemanticHit, topK int) []*models.RerankedHit
}

// Versioner exposes the stores' data-version marker for cache keying.
type Versioner interface {
	DataVersion(ctx context.Context) (string, error)
}

// Engine is the query coordinator. All collaborators are injected; the engine
// holds no mutable cross-query state beyond the result cache.
type Engine struct {
	extractor  Extractor
	structured StructuredRetriever
	semantic   SemanticRetriever
	reranker   Reranker // nil means raw distance ordering
	fuser      *fusion.Fuser
	cache      *ResultCache // nil means caching disabled
	versioner  Versioner
	cfg        *config.RetrievalConfig
	logger     *zap.Logger
}

// NewEngine creates a query coordinator with the given collaborators.
// reranker and cache may be nil.
func NewEngine(
	extractor Extractor,
	structuredR StructuredRetriever,
	semanticR SemanticRetriever,
	reranker Reranker,
	fuser *fusion.Fuser,
	cache *ResultCache,
	versioner Versioner,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		extractor:  extractor,
		structured: structuredR,
		semantic:   semanticR,
		reranker:   reranker,
		fuser:      fuser,
		cache:      cache,
		versioner:  versioner,
		cfg:        cfg,
		logger:     logger,
	}
}

// pathResult carries one retrieval path's outcome across the fan-in.
type pathResult[T any] struct {
	hits []T
	err  error
}

// Query answers a single query. Path-local failures (timeout, store
// unavailable) are absorbed into "no contribution"; only validation failures
// or a total failure of both paths surface as errors. Wall-clock approximates
// the slower path, not the sum of both.
func (e *Engine) Query(ctx context.Context, query *models.Query) (*models.FusedResult, error) {
	start := time.Now()
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := structured.ValidateCodes(query.Filters.Codes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	queryID := uuid.NewString()

	version := e.dataVersion(ctx)
	var cacheKey string
	if e.cache != nil {
		cacheKey = e.cache.Key(query, version)
		if result, ok := e.cache.Get(cacheKey); ok {
			e.logger.Debug("cache hit", zap.String("query_id", queryID))
			return result, nil
		}
	}

	params := mergeParams(query.Filters, e.extractParams(ctx, query.Text, queryID))

	structuredCh := make(chan pathResult[*models.StructuredHit], 1)
	semanticCh := make(chan pathResult[*models.SemanticHit], 1)
	fanOut := time.Now()

	go func() {
		sctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.StructuredTimeoutMs)*time.Millisecond)
		defer cancel()
		hits, err := e.structured.Retrieve(sctx, params)
		structuredCh <- pathResult[*models.StructuredHit]{hits: hits, err: err}
	}()

	go func() {
		sctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.SemanticTimeoutMs)*time.Millisecond)
		defer cancel()
		hits, err := e.semantic.Retrieve(sctx, query.Text, params.Category)
		semanticCh <- pathResult[*models.SemanticHit]{hits: hits, err: err}
	}()

	// both abandonment deadlines are anchored to the fan-out instant, so
	// waiting on the first path consumes the second path's wait as well
	structuredRes := awaitPath(ctx, structuredCh, pathDeadline(fanOut, e.cfg.StructuredTimeoutMs), "structured", queryID, e.logger)
	semanticRes := awaitPath(ctx, semanticCh, pathDeadline(fanOut, e.cfg.SemanticTimeoutMs), "semantic", queryID, e.logger)

	if structuredRes.err != nil && semanticRes.err != nil {
		return nil, fmt.Errorf("%w: structured: %v; semantic: %v",
			ErrAllPathsFailed, structuredRes.err, semanticRes.err)
	}

	var reranked []*models.RerankedHit
	if len(semanticRes.hits) > 0 {
		if e.reranker != nil {
			reranked = e.reranker.Rerank(ctx, query.Text, semanticRes.hits, query.TopK)
		} else {
			reranked = rerank.DistanceOrder(semanticRes.hits, query.TopK)
		}
	}

	result := e.fuser.Fuse(structuredRes.hits, reranked)
	if len(query.Fields) > 0 {
		applyFieldMask(result, query.Fields)
	}

	if e.cache != nil {
		e.cache.Set(cacheKey, result)
	}
	e.logger.Info("query answered",
		zap.String("query_id", queryID),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("conflict", result.Conflict),
		zap.Int("items", len(result.Items)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// pathGrace is how long past its own timeout a path goroutine may keep
// running before the fan-in abandons it. Covers goroutines that miss the
// context cancellation by a scheduling tick.
const pathGrace = 100 * time.Millisecond

// pathDeadline is the wall-clock instant at which a path is abandoned.
func pathDeadline(fanOut time.Time, timeoutMs int) time.Time {
	return fanOut.Add(time.Duration(timeoutMs)*time.Millisecond + pathGrace)
}

// awaitPath collects one path's result, abandoning the goroutine once its
// deadline passes. An abandoned or failed path simply contributes nothing.
// A deadline already in the past fires immediately.
func awaitPath[T any](ctx context.Context, ch <-chan pathResult[T], deadline time.Time, path, queryID string, logger *zap.Logger) pathResult[T] {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			logger.Warn("retrieval path failed",
				zap.String("query_id", queryID),
				zap.String("path", path),
				zap.Error(res.err))
		}
		return res
	case <-timer.C:
		logger.Warn("retrieval path abandoned after timeout",
			zap.String("query_id", queryID),
			zap.String("path", path))
		return pathResult[T]{err: context.DeadlineExceeded}
	case <-ctx.Done():
		return pathResult[T]{err: ctx.Err()}
	}
}

// extractParams runs parameter extraction under its own short budget. The
// extractor may call out to an inference service, so a slow or failed
// extraction is abandoned and contributes nothing; explicit filters and the
// raw query text still drive both retrieval paths.
func (e *Engine) extractParams(ctx context.Context, text, queryID string) models.Params {
	ectx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.ExtractTimeoutMs)*time.Millisecond)
	defer cancel()

	type extraction struct {
		params models.Params
		err    error
	}
	ch := make(chan extraction, 1)
	go func() {
		params, err := e.extractor.Extract(ectx, text)
		ch <- extraction{params: params, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			e.logger.Warn("extraction failed, proceeding with explicit filters only",
				zap.String("query_id", queryID), zap.Error(res.err))
			return models.Params{}
		}
		return res.params
	case <-ectx.Done():
		e.logger.Warn("extraction abandoned after timeout",
			zap.String("query_id", queryID))
		return models.Params{}
	}
}

// dataVersion reads the stores' version marker; failures degrade to an empty
// version rather than blocking the query.
func (e *Engine) dataVersion(ctx context.Context) string {
	if e.versioner == nil {
		return ""
	}
	v, err := e.versioner.DataVersion(ctx)
	if err != nil {
		e.logger.Warn("data version unavailable", zap.Error(err))
		return ""
	}
	return v
}

// applyFieldMask restricts structured items to the requested fields.
// Semantic items are text-bearing and pass through unchanged.
func applyFieldMask(result *models.FusedResult, fields []string) {
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[strings.ToLower(f)] = true
	}
	for i := range result.Items {
		item := &result.Items[i]
		if item.Source != models.SourceStructured || len(item.Fields) == 0 {
			continue
		}
		masked := make(map[string]any, len(fields))
		for k, v := range item.Fields {
			if want[strings.ToLower(k)] {
				masked[k] = v
			}
		}
		item.Fields = masked
	}
}

// mergeParams combines caller-supplied filters with extracted parameters.
// Explicit filters win; extracted values fill the gaps. Codes are unioned,
// explicit first, order-preserving.
func mergeParams(explicit, extracted models.Params) models.Params {
	merged := models.Params{
		Entity:   explicit.Entity,
		Category: explicit.Category,
	}
	if merged.Entity == "" {
		merged.Entity = extracted.Entity
	}
	if merged.Category == "" {
		merged.Category = extracted.Category
	}
	seen := make(map[string]bool)
	for _, c := range append(append([]string{}, explicit.Codes...), extracted.Codes...) {
		if !seen[c] {
			seen[c] = true
			merged.Codes = append(merged.Codes, c)
		}
	}
	return merged
}
