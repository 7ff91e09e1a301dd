package models

// Source identifies a retrieval path that contributed data to a result.
type Source string

const (
	SourceStructured Source = "structured"
	SourceSemantic   Source = "semantic"
)

// Item is one hit-derived record inside a FusedResult.
type Item struct {
	Source   Source         `json:"source"`
	Table    string         `json:"table,omitempty"`
	EntityID string         `json:"entity_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	ChunkID  string         `json:"chunk_id,omitempty"`
	Text     string         `json:"text,omitempty"`
	Score    float64        `json:"score"`
}

// Citation is a deduplicated source reference backing a FusedResult.
type Citation struct {
	Source   string `json:"source"`
	Location string `json:"location,omitempty"`
	Trusted  bool   `json:"trusted"`
	Access   string `json:"access,omitempty"`
}

// FusedResult is the engine's sole return contract. Immutable once returned.
// A result with any item carries at least one citation. Provenance lists only
// the paths that actually returned data, not paths merely attempted.
type FusedResult struct {
	Provenance     []Source   `json:"provenance"`
	Confidence     float64    `json:"confidence"`
	Items          []Item     `json:"items"`
	Citations      []Citation `json:"citations"`
	Conflict       bool       `json:"conflict"`
	ConflictDetail string     `json:"conflict_detail,omitempty"`
}

// NoEvidence reports whether neither path contributed data.
func (r *FusedResult) NoEvidence() bool {
	return len(r.Provenance) == 0
}
