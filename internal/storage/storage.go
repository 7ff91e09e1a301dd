// Package storage defines read-only access to the structured and chunk stores.
// Both stores are populated by the offline ingestion pipeline; this engine
// never writes business rows.
package storage

import "context"

// FeeCode is a row of the fee schedule table.
type FeeCode struct {
	Code        string
	Description string
	Fee         float64
	Category    string
	Billable    bool
}

// FormularyEntry is a row of the drug formulary table. Entries sharing an
// InterchangeGroup are clinically interchangeable; at most one is preferred.
type FormularyEntry struct {
	ID               string
	DrugName         string
	DrugClass        string
	InterchangeGroup string
	Covered          bool
	Preferred        bool
	Copay            float64
}

// DeviceRule is a row of the device funding rules table.
type DeviceRule struct {
	ID       string
	Name     string
	Category string
	Funded   bool
	Criteria string
}

// Chunk is the stored metadata and text of an embedded document chunk.
// Category is a scalar used for metadata filtering; Topics are descriptive tags.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Section    string
	Page       int
	Category   string
	Topics     []string
}

// StructuredStore provides deterministic lookups against the relational store.
type StructuredStore interface {
	GetFeeCodes(ctx context.Context, codes []string) ([]*FeeCode, error)
	FindFormularyByName(ctx context.Context, name string) ([]*FormularyEntry, error)
	FindFormularyByGroup(ctx context.Context, group string) ([]*FormularyEntry, error)
	FindDeviceRulesByName(ctx context.Context, name string) ([]*DeviceRule, error)
	// DataVersion returns the ingestion pipeline's data-version marker,
	// used to key and invalidate the result cache.
	DataVersion(ctx context.Context) (string, error)
}

// ChunkStore resolves chunk metadata for semantic hits.
type ChunkStore interface {
	GetChunk(ctx context.Context, id string) (*Chunk, error)
}
