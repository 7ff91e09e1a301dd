// Package extract pulls structured lookup parameters out of free-text queries.
// Extraction is an ordered strategy chain: cheap pattern matching first, then
// a constrained-output inference call for queries the patterns cannot read.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Extractor produces structured parameters from free text. An empty Params
// with a nil error means the strategy found nothing.
type Extractor interface {
	Extract(ctx context.Context, text string) (models.Params, error)
}

// Chain runs extractors in order; the first non-empty result wins.
// Strategy errors are absorbed and logged: partial or failed extraction must
// never block downstream retrieval.
type Chain struct {
	extractors []Extractor
	logger     *zap.Logger
}

// NewChain creates an extraction chain over the given strategies.
func NewChain(logger *zap.Logger, extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors, logger: logger}
}

// Extract returns the first non-empty extraction result, or empty Params when
// every strategy comes up empty.
func (c *Chain) Extract(ctx context.Context, text string) (models.Params, error) {
	if text == "" {
		return models.Params{}, nil
	}
	for _, e := range c.extractors {
		params, err := e.Extract(ctx, text)
		if err != nil {
			c.logger.Warn("extraction strategy failed, falling through",
				zap.Error(err))
			continue
		}
		if !params.Empty() {
			return params, nil
		}
	}
	return models.Params{}, nil
}
