package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

var (
	codeRegex = regexp.MustCompile(`(?i)\b([a-z]{1,3}[0-9]{2,5})\b`)

	// Common phrasing templates: "is <entity> covered", "is the <entity> funded",
	// "coverage for <entity>".
	entityVerbRegex = regexp.MustCompile(
		`(?i)\bis\s+(?:drug\s+|device\s+|the\s+|a\s+)?([a-z][a-z0-9 \-]{1,40}?)\s+(covered|funded|subsidised|subsidized|reimbursed|billable)\b`)
	coverageOfRegex = regexp.MustCompile(
		`(?i)\b(?:coverage|funding|rebate)\s+(?:for|of)\s+(?:the\s+|a\s+)?([a-z][a-z0-9 \-]{1,40}?)(?:[?.,]|$)`)
)

// categoryKeywords maps query vocabulary to the chunk-store category scalar.
var categoryKeywords = []struct {
	words    []string
	category string
}{
	{[]string{"billable", "billing", "fee", "rebate", "item number"}, "fees"},
	{[]string{"covered", "coverage", "formulary", "drug", "prescription", "subsidised", "subsidized"}, "formulary"},
	{[]string{"funded", "funding", "device", "equipment"}, "devices"},
}

// PatternExtractor extracts parameters with precompiled templates. It covers
// the common phrasings cheaply so the inference fallback rarely runs.
type PatternExtractor struct{}

// NewPatternExtractor creates a pattern-based extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract applies the code, entity, and category patterns to text.
func (e *PatternExtractor) Extract(ctx context.Context, text string) (models.Params, error) {
	var params models.Params

	seen := make(map[string]bool)
	for _, m := range codeRegex.FindAllStringSubmatch(text, -1) {
		code := strings.ToUpper(m[1])
		if !seen[code] {
			seen[code] = true
			params.Codes = append(params.Codes, code)
		}
	}

	if m := entityVerbRegex.FindStringSubmatch(text); m != nil {
		params.Entity = normalizeEntity(m[1])
	} else if m := coverageOfRegex.FindStringSubmatch(text); m != nil {
		params.Entity = normalizeEntity(m[1])
	}
	// A lone code is not an entity name.
	if params.Entity != "" && codeRegex.MatchString(params.Entity) && len(strings.Fields(params.Entity)) == 1 {
		params.Entity = ""
	}

	lower := strings.ToLower(text)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				params.Category = ck.category
				break
			}
		}
		if params.Category != "" {
			break
		}
	}

	return params, nil
}

func normalizeEntity(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = utils.NormalizeToken(f)
	}
	// strip a leading "code" artifact from templates like "is code C124 billable"
	if len(fields) > 0 && fields[0] == "code" {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}
