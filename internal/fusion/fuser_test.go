package fusion

import (
	"encoding/json"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func newTestFuser() *Fuser {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewFuser(&cfg.Fusion, NewCitationBuilder(cfg.Citation.TrustedSources))
}

func feeHit() *models.StructuredHit {
	return &models.StructuredHit{
		Table:    "fee_schedule",
		EntityID: "C124",
		Fields: map[string]any{
			"code": "C124", "description": "Standard consultation",
			"fee": 31.00, "billable": true,
		},
	}
}

func chunkHit(id, text string, relevance float64) *models.RerankedHit {
	return &models.RerankedHit{
		SemanticHit: models.SemanticHit{
			ChunkID: id, Text: text, DocumentID: "funding-manual-2026",
			Section: "3.2", Page: 41, Distance: 1 - relevance,
		},
		Relevance: relevance,
	}
}

func TestFuseStructuredOnly(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse([]*models.StructuredHit{feeHit()}, nil)

	if len(r.Provenance) != 1 || r.Provenance[0] != models.SourceStructured {
		t.Errorf("unexpected provenance %v", r.Provenance)
	}
	if r.Confidence < 0.70 || r.Confidence > 0.80 {
		t.Errorf("structured-only confidence out of band: %f", r.Confidence)
	}
	if r.Conflict {
		t.Error("no conflict expected")
	}
	if len(r.Items) != 1 || r.Items[0].Fields["fee"] != 31.00 {
		t.Errorf("unexpected items %+v", r.Items)
	}
	if len(r.Citations) == 0 {
		t.Error("result with items must carry a citation")
	}
}

func TestFuseSemanticOnly(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse(nil, []*models.RerankedHit{
		chunkHit("ch-9", "Drugs in the excluded class are not covered.", 0.8),
	})

	if len(r.Provenance) != 1 || r.Provenance[0] != models.SourceSemantic {
		t.Errorf("unexpected provenance %v", r.Provenance)
	}
	if r.Confidence < 0.60 || r.Confidence > 0.75 {
		t.Errorf("semantic-only confidence out of band: %f", r.Confidence)
	}
	if r.Conflict {
		t.Error("no conflict without a structured counterpart")
	}
}

func TestFuseAgreement(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse(
		[]*models.StructuredHit{feeHit()},
		[]*models.RerankedHit{
			chunkHit("ch-1", "Code C124 attracts a fee of 31.00 per service.", 0.9),
		},
	)

	if len(r.Provenance) != 2 {
		t.Errorf("expected both paths in provenance, got %v", r.Provenance)
	}
	if r.Confidence < 0.85 {
		t.Errorf("agreement confidence below band: %f", r.Confidence)
	}
	if r.Conflict {
		t.Error("agreement must not flag conflict")
	}
}

func TestFuseAgreementMonotonic(t *testing.T) {
	f := newTestFuser()
	one := f.Fuse([]*models.StructuredHit{feeHit()}, []*models.RerankedHit{
		chunkHit("ch-1", "Code C124 attracts a fee of 31.00.", 0.9),
	})
	two := f.Fuse([]*models.StructuredHit{feeHit()}, []*models.RerankedHit{
		chunkHit("ch-1", "Code C124 attracts a fee of 31.00.", 0.9),
		chunkHit("ch-2", "Item C124 is billable at 31.00.", 0.8),
	})

	if two.Confidence < one.Confidence {
		t.Errorf("more agreement lowered confidence: %f < %f", two.Confidence, one.Confidence)
	}
	if two.Confidence > f.cfg.AgreementCap {
		t.Errorf("confidence above cap: %f", two.Confidence)
	}
}

func TestFuseConflict(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse(
		[]*models.StructuredHit{feeHit()},
		[]*models.RerankedHit{
			chunkHit("ch-3", "Code C124 is no longer billable as of July.", 0.9),
		},
	)

	if !r.Conflict {
		t.Fatal("expected conflict flag")
	}
	if r.ConflictDetail == "" {
		t.Error("conflict must carry detail")
	}
	want := f.cfg.StructuredOnlyBase - f.cfg.ConflictPenalty
	if r.Confidence != want {
		t.Errorf("expected base minus penalty %f, got %f", want, r.Confidence)
	}
	// both values are retained, never hidden
	if len(r.Items) != 2 {
		t.Errorf("conflicting items must both survive, got %d", len(r.Items))
	}
}

func TestFuseNoEvidence(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse(nil, nil)

	if !r.NoEvidence() {
		t.Error("expected no-evidence result")
	}
	if r.Confidence != 0 {
		t.Errorf("no-evidence confidence must be 0, got %f", r.Confidence)
	}
	if r.Conflict {
		t.Error("no-evidence must not flag conflict")
	}
	if len(r.Items) != 0 || len(r.Citations) != 0 {
		t.Error("no-evidence result must be empty")
	}
}

func TestFuseUnrelatedSemanticStaysStructuredBand(t *testing.T) {
	f := newTestFuser()
	r := f.Fuse(
		[]*models.StructuredHit{feeHit()},
		[]*models.RerankedHit{
			chunkHit("ch-4", "Wheelchair funding requires an assessment.", 0.4),
		},
	)

	// semantic returned data but nothing corroborating: structured-only band
	if r.Confidence < 0.70 || r.Confidence > 0.80 {
		t.Errorf("expected structured-only band, got %f", r.Confidence)
	}
	if len(r.Provenance) != 2 {
		t.Errorf("both paths contributed data: %v", r.Provenance)
	}
}

func TestFuseDeterministic(t *testing.T) {
	f := newTestFuser()
	structured := []*models.StructuredHit{feeHit()}
	semantic := []*models.RerankedHit{
		chunkHit("ch-1", "Code C124 attracts a fee of 31.00.", 0.9),
		chunkHit("ch-2", "Consultation items are billable.", 0.7),
	}

	a, _ := json.Marshal(f.Fuse(structured, semantic))
	b, _ := json.Marshal(f.Fuse(structured, semantic))
	if string(a) != string(b) {
		t.Error("identical inputs produced different results")
	}
}
