// Package models defines core data structures for queries, hits, and fused results.
package models

import "fmt"

// Params holds structured lookup parameters, either supplied by the caller as
// explicit filters or extracted from free text. The zero value means "none".
type Params struct {
	// Codes are billing/item identifiers (e.g. "C124").
	Codes []string `json:"codes,omitempty"`
	// Entity is a drug, device, or service name.
	Entity string `json:"entity,omitempty"`
	// Category restricts semantic retrieval to a topic domain
	// (e.g. "fees", "formulary", "devices").
	Category string `json:"category,omitempty"`
}

// Empty reports whether no parameter was supplied or extracted.
func (p *Params) Empty() bool {
	return len(p.Codes) == 0 && p.Entity == "" && p.Category == ""
}

// Query represents a single question to the engine. Immutable once constructed.
type Query struct {
	Text    string   `json:"text"`
	Filters Params   `json:"filters,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	TopK    int      `json:"top_k,omitempty"`
}

// Validate ensures the query has content and normalizes the result cap.
// Returns an error if both the text and the explicit filters are empty.
func (q *Query) Validate() error {
	if q.Text == "" && q.Filters.Empty() {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}
	if q.TopK > 50 {
		q.TopK = 50
	}
	return nil
}
