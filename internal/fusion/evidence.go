package fusion

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Evidence assessment is deterministic text matching, not a model judgment:
// repeated identical queries must produce byte-identical results.

// negationMarkers indicate a chunk asserts the opposite of an affirmative
// structured fact.
var negationMarkers = []string{
	"not billable",
	"no longer billable",
	"not covered",
	"no longer covered",
	"not funded",
	"no longer funded",
	"excluded",
	"delisted",
	"ceased",
	"withdrawn",
}

// affirmationMarkers indicate a chunk asserts the fact holds.
var affirmationMarkers = []string{
	"billable",
	"covered",
	"funded",
	"subsidised",
	"subsidized",
	"listed",
	"reimbursed",
}

// assessment is the outcome of comparing one structured hit against the
// semantic hit set.
type assessment struct {
	corroborating int
	conflict      bool
	detail        string
}

// assessEvidence checks each semantic hit that mentions the structured
// entity. A mention plus the expected value (or an affirmation consistent
// with the stored fact) corroborates; a mention plus a contrary signal
// conflicts. A bare mention is neither.
func assessEvidence(s *models.StructuredHit, semantic []*models.RerankedHit) assessment {
	var result assessment
	mentions := entityMentions(s)
	if len(mentions) == 0 {
		return result
	}

	affirmative := structuredAffirmative(s)
	value := keyValueString(s)

	for _, hit := range semantic {
		text := strings.ToLower(hit.Text)
		if !mentionsAny(text, mentions) {
			continue
		}

		negated := containsAny(text, negationMarkers)
		affirmed := !negated && containsAny(text, affirmationMarkers)
		valueMatch := value != "" && strings.Contains(text, value)

		switch {
		case negated && affirmative, affirmed && !affirmative:
			result.conflict = true
			if result.detail == "" {
				result.detail = fmt.Sprintf(
					"%s row %s disagrees with document %s (%s): %q",
					s.Table, s.EntityID, hit.DocumentID, hit.Section,
					utils.Truncate(strings.TrimSpace(hit.Text), 160))
			}
		case valueMatch, affirmed && affirmative, negated && !affirmative:
			result.corroborating++
		}
	}
	return result
}

// entityMentions returns the lowercase strings whose presence in a chunk
// counts as mentioning this structured entity.
func entityMentions(s *models.StructuredHit) []string {
	var mentions []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			mentions = append(mentions, v)
		}
	}
	switch s.Table {
	case "fee_schedule":
		add(s.EntityID)
	case "formulary":
		if name, ok := s.Fields["drug_name"].(string); ok {
			add(name)
		}
	case "device_rules":
		if name, ok := s.Fields["name"].(string); ok {
			add(name)
		}
	default:
		add(s.EntityID)
	}
	return mentions
}

// structuredAffirmative reports whether the stored fact is affirmative
// (billable, covered, funded) as opposed to an exclusion row.
func structuredAffirmative(s *models.StructuredHit) bool {
	for _, key := range []string{"billable", "covered", "funded"} {
		if v, ok := s.Fields[key].(bool); ok {
			return v
		}
	}
	return true
}

// keyValueString returns the textual form of the hit's key numeric fact, when
// it has one worth matching in prose (the fee amount).
func keyValueString(s *models.StructuredHit) string {
	if fee, ok := s.Fields["fee"].(float64); ok {
		return fmt.Sprintf("%.2f", fee)
	}
	return ""
}

func mentionsAny(text string, mentions []string) bool {
	for _, m := range mentions {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
