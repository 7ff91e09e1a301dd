package models

// StructuredHit is a row returned by the relational store. Exact match, so its
// pre-fusion confidence is implicitly 1.0. Hits are created per-query and
// never mutated after creation.
type StructuredHit struct {
	Table     string         `json:"table"`
	EntityID  string         `json:"entity_id"`
	Fields    map[string]any `json:"fields"`
	Preferred bool           `json:"preferred,omitempty"`
}

// SemanticHit is a text chunk retrieved by nearest-neighbor search.
type SemanticHit struct {
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Distance   float64  `json:"distance"` // cosine distance, lower is closer
	DocumentID string   `json:"document_id"`
	Section    string   `json:"section,omitempty"`
	Page       int      `json:"page,omitempty"`
	Topics     []string `json:"topics,omitempty"`
}

// RerankedHit is a SemanticHit annotated with a relevance score in [0,1]
// assigned independently of embedding distance.
type RerankedHit struct {
	SemanticHit
	Relevance float64 `json:"relevance"`
}
