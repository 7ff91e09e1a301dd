package fusion

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// CitationBuilder assembles deduplicated, trust-tagged source references from
// the hits composing a result.
type CitationBuilder struct {
	trusted []string
}

// NewCitationBuilder creates a builder with the given source allow-list.
// Entries ending in "-" match as prefixes (document families); others match
// exactly (table names, single documents).
func NewCitationBuilder(trusted []string) *CitationBuilder {
	normalized := make([]string, len(trusted))
	for i, t := range trusted {
		normalized[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return &CitationBuilder{trusted: normalized}
}

// Build returns citations for the given hits, in hit order, deduplicated by
// normalized source identifier + location. Dedup on the key rather than raw
// text prevents the same passage being cited twice when both retrieval paths
// surface it.
func (b *CitationBuilder) Build(structured []*models.StructuredHit, semantic []*models.RerankedHit) []models.Citation {
	citations := make([]models.Citation, 0, len(structured)+len(semantic))
	seen := make(map[string]bool)

	add := func(c models.Citation) {
		key := normalizeKey(c.Source) + "|" + normalizeKey(c.Location)
		if seen[key] {
			return
		}
		seen[key] = true
		citations = append(citations, c)
	}

	for _, hit := range structured {
		add(models.Citation{
			Source:   hit.Table,
			Location: hit.EntityID,
			Trusted:  b.isTrusted(hit.Table),
			Access:   "authoritative",
		})
	}
	for _, hit := range semantic {
		add(models.Citation{
			Source:   hit.DocumentID,
			Location: chunkLocation(&hit.SemanticHit),
			Trusted:  b.isTrusted(hit.DocumentID),
			Access:   "document",
		})
	}
	return citations
}

func (b *CitationBuilder) isTrusted(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	for _, t := range b.trusted {
		if strings.HasSuffix(t, "-") {
			if strings.HasPrefix(s, t) {
				return true
			}
		} else if s == t {
			return true
		}
	}
	return false
}

// chunkLocation renders a chunk's section/page into a citation location.
func chunkLocation(h *models.SemanticHit) string {
	switch {
	case h.Section != "" && h.Page > 0:
		return fmt.Sprintf("%s:p%d", h.Section, h.Page)
	case h.Section != "":
		return h.Section
	case h.Page > 0:
		return fmt.Sprintf("p%d", h.Page)
	default:
		return ""
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
