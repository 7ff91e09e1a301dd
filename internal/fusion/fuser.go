// Package fusion merges structured and semantic hit sets into one
// confidence-scored, conflict-flagged, citation-backed result.
package fusion

import (
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Fuser scores and assembles FusedResults. All scoring is pure arithmetic
// over the configured bands: identical inputs always produce identical output.
type Fuser struct {
	cfg       *config.FusionConfig
	citations *CitationBuilder
}

// NewFuser creates a fuser with the given band configuration and citation builder.
func NewFuser(cfg *config.FusionConfig, citations *CitationBuilder) *Fuser {
	return &Fuser{cfg: cfg, citations: citations}
}

// Fuse merges the hit sets into a single FusedResult. Disagreement between
// the sources is flagged and both values are retained in the items, never
// silently resolved in favor of one source.
func (f *Fuser) Fuse(structured []*models.StructuredHit, semantic []*models.RerankedHit) *models.FusedResult {
	result := &models.FusedResult{
		Provenance: make([]models.Source, 0, 2),
		Items:      make([]models.Item, 0, len(structured)+len(semantic)),
		Citations:  make([]models.Citation, 0),
	}

	if len(structured) > 0 {
		result.Provenance = append(result.Provenance, models.SourceStructured)
	}
	if len(semantic) > 0 {
		result.Provenance = append(result.Provenance, models.SourceSemantic)
	}
	if result.NoEvidence() {
		// explicit no-evidence state: confidence 0, nothing fabricated
		return result
	}

	for _, hit := range structured {
		result.Items = append(result.Items, models.Item{
			Source:   models.SourceStructured,
			Table:    hit.Table,
			EntityID: hit.EntityID,
			Fields:   hit.Fields,
			Score:    1.0,
		})
	}
	for _, hit := range semantic {
		result.Items = append(result.Items, models.Item{
			Source:  models.SourceSemantic,
			ChunkID: hit.ChunkID,
			Text:    hit.Text,
			Score:   hit.Relevance,
		})
	}

	corroborating := 0
	for _, hit := range structured {
		a := assessEvidence(hit, semantic)
		corroborating += a.corroborating
		if a.conflict && !result.Conflict {
			result.Conflict = true
			result.ConflictDetail = a.detail
		}
	}

	result.Confidence = f.score(len(structured), semantic, corroborating, result.Conflict)
	result.Citations = f.citations.Build(structured, semantic)
	return result
}

// score applies the band table. Confidence is monotonic in agreement: more
// corroboration never lowers it.
func (f *Fuser) score(nStructured int, semantic []*models.RerankedHit, corroborating int, conflict bool) float64 {
	cfg := f.cfg
	switch {
	case conflict:
		return utils.Clamp(f.baseConfidence(nStructured, semantic)-cfg.ConflictPenalty, 0, 1)
	case corroborating > 0:
		c := cfg.AgreementBase + cfg.AgreementStep*float64(corroborating-1)
		return utils.Clamp(c, cfg.AgreementBase, cfg.AgreementCap)
	default:
		return f.baseConfidence(nStructured, semantic)
	}
}

// baseConfidence is the no-corroboration band for whichever paths contributed.
func (f *Fuser) baseConfidence(nStructured int, semantic []*models.RerankedHit) float64 {
	cfg := f.cfg
	if nStructured > 0 {
		c := cfg.StructuredOnlyBase + cfg.StructuredOnlyStep*float64(nStructured-1)
		return utils.Clamp(c, cfg.StructuredOnlyBase, cfg.StructuredOnlyMax)
	}
	top := 0.0
	if len(semantic) > 0 {
		top = semantic[0].Relevance
	}
	c := cfg.SemanticOnlyMin + cfg.SemanticOnlySpread*top
	return utils.Clamp(c, cfg.SemanticOnlyMin, cfg.SemanticOnlyMax)
}
