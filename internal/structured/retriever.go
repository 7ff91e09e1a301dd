// Package structured implements the deterministic lookup path against the
// relational store.
package structured

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// codeFormat is the accepted identifier shape: 1-3 letters then 2-5 digits.
// Format-checking up front avoids wasted round-trips and keeps raw input out
// of query construction.
var codeFormat = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{2,5}$`)

// ValidateCodes rejects malformed identifiers in caller-supplied filters.
func ValidateCodes(codes []string) error {
	for _, c := range codes {
		if !codeFormat.MatchString(strings.ToUpper(c)) {
			return fmt.Errorf("malformed code %q", c)
		}
	}
	return nil
}

// Retriever runs deterministic lookups and converts rows to StructuredHits.
type Retriever struct {
	store  storage.StructuredStore
	logger *zap.Logger
}

// NewRetriever creates a structured retriever over the given store.
func NewRetriever(store storage.StructuredStore, logger *zap.Logger) *Retriever {
	return &Retriever{store: store, logger: logger}
}

// Retrieve looks up whatever the extracted parameters allow: fee codes when
// codes are present, formulary and device rules when an entity name is.
// Ordering is deterministic: preferred rows first, then table, then entity ID,
// so repeated identical queries against unchanged data return identical hits.
func (r *Retriever) Retrieve(ctx context.Context, params models.Params) ([]*models.StructuredHit, error) {
	var hits []*models.StructuredHit

	codes := make([]string, 0, len(params.Codes))
	for _, c := range params.Codes {
		c = strings.ToUpper(c)
		if codeFormat.MatchString(c) {
			codes = append(codes, c)
		} else {
			r.logger.Debug("dropping malformed extracted code", zap.String("code", c))
		}
	}

	if len(codes) > 0 {
		fees, err := r.store.GetFeeCodes(ctx, codes)
		if err != nil {
			return nil, fmt.Errorf("fee lookup failed: %w", err)
		}
		for _, fc := range fees {
			hits = append(hits, feeHit(fc))
		}
	}

	if params.Entity != "" {
		if params.Category == "" || params.Category == "formulary" {
			entries, err := r.lookupFormulary(ctx, params.Entity)
			if err != nil {
				return nil, err
			}
			for _, fe := range entries {
				hits = append(hits, formularyHit(fe))
			}
		}
		if params.Category == "" || params.Category == "devices" {
			rules, err := r.store.FindDeviceRulesByName(ctx, params.Entity)
			if err != nil {
				return nil, fmt.Errorf("device lookup failed: %w", err)
			}
			for _, dr := range rules {
				hits = append(hits, deviceHit(dr))
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Preferred != hits[j].Preferred {
			return hits[i].Preferred
		}
		if hits[i].Table != hits[j].Table {
			return hits[i].Table < hits[j].Table
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	return hits, nil
}

// lookupFormulary finds entries by name and expands to the full interchange
// group, so an interchangeable-drug question surfaces the preferred member.
func (r *Retriever) lookupFormulary(ctx context.Context, entity string) ([]*storage.FormularyEntry, error) {
	byName, err := r.store.FindFormularyByName(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("formulary lookup failed: %w", err)
	}

	seen := make(map[string]bool, len(byName))
	result := make([]*storage.FormularyEntry, 0, len(byName))
	for _, fe := range byName {
		seen[fe.ID] = true
		result = append(result, fe)
	}

	for _, fe := range byName {
		if fe.InterchangeGroup == "" {
			continue
		}
		group, err := r.store.FindFormularyByGroup(ctx, fe.InterchangeGroup)
		if err != nil {
			return nil, fmt.Errorf("interchange group lookup failed: %w", err)
		}
		for _, g := range group {
			if !seen[g.ID] {
				seen[g.ID] = true
				result = append(result, g)
			}
		}
	}
	return result, nil
}

func feeHit(fc *storage.FeeCode) *models.StructuredHit {
	return &models.StructuredHit{
		Table:    "fee_schedule",
		EntityID: fc.Code,
		Fields: map[string]any{
			"code":        fc.Code,
			"description": fc.Description,
			"fee":         fc.Fee,
			"category":    fc.Category,
			"billable":    fc.Billable,
		},
	}
}

func formularyHit(fe *storage.FormularyEntry) *models.StructuredHit {
	return &models.StructuredHit{
		Table:    "formulary",
		EntityID: fe.ID,
		Fields: map[string]any{
			"drug_name":         fe.DrugName,
			"drug_class":        fe.DrugClass,
			"interchange_group": fe.InterchangeGroup,
			"covered":           fe.Covered,
			"preferred":         fe.Preferred,
			"copay":             fe.Copay,
		},
		Preferred: fe.Preferred,
	}
}

func deviceHit(dr *storage.DeviceRule) *models.StructuredHit {
	return &models.StructuredHit{
		Table:    "device_rules",
		EntityID: dr.ID,
		Fields: map[string]any{
			"name":     dr.Name,
			"category": dr.Category,
			"funded":   dr.Funded,
			"criteria": dr.Criteria,
		},
	}
}
