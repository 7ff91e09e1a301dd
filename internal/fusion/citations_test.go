package fusion

import (
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestBuildCitations(t *testing.T) {
	b := NewCitationBuilder([]string{"fee_schedule", "funding-manual-"})

	structured := []*models.StructuredHit{
		{Table: "fee_schedule", EntityID: "C124"},
	}
	semantic := []*models.RerankedHit{
		{SemanticHit: models.SemanticHit{
			ChunkID: "ch-1", DocumentID: "funding-manual-2026", Section: "3.2", Page: 41,
		}},
		{SemanticHit: models.SemanticHit{
			ChunkID: "ch-2", DocumentID: "community-blog", Section: "intro",
		}},
	}

	citations := b.Build(structured, semantic)
	if len(citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(citations))
	}
	if !citations[0].Trusted || citations[0].Source != "fee_schedule" {
		t.Errorf("structured citation not trusted: %+v", citations[0])
	}
	if !citations[1].Trusted {
		t.Error("prefix allow-list entry should mark funding-manual-2026 trusted")
	}
	if citations[1].Location != "3.2:p41" {
		t.Errorf("unexpected location %q", citations[1].Location)
	}
	if citations[2].Trusted {
		t.Error("unlisted source must not be trusted")
	}
}

func TestBuildCitationsDedupAcrossPaths(t *testing.T) {
	b := NewCitationBuilder(nil)

	// the same source+location surfaced by both retrieval paths
	structured := []*models.StructuredHit{
		{Table: "Fee_Schedule", EntityID: "C124"},
	}
	semantic := []*models.RerankedHit{
		{SemanticHit: models.SemanticHit{ChunkID: "ch-1", DocumentID: "fee_schedule", Section: "C124"}},
	}

	citations := b.Build(structured, semantic)
	if len(citations) != 1 {
		t.Fatalf("expected 1 deduplicated citation, got %d", len(citations))
	}
}

func TestBuildCitationsDedupSameChunkTwice(t *testing.T) {
	b := NewCitationBuilder(nil)
	hit := models.SemanticHit{ChunkID: "ch-1", DocumentID: "doc", Section: "5", Page: 2}
	citations := b.Build(nil, []*models.RerankedHit{
		{SemanticHit: hit}, {SemanticHit: hit},
	})
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
}

func TestChunkLocationForms(t *testing.T) {
	cases := []struct {
		hit  models.SemanticHit
		want string
	}{
		{models.SemanticHit{Section: "3.2", Page: 41}, "3.2:p41"},
		{models.SemanticHit{Section: "3.2"}, "3.2"},
		{models.SemanticHit{Page: 7}, "p7"},
		{models.SemanticHit{}, ""},
	}
	for _, c := range cases {
		if got := chunkLocation(&c.hit); got != c.want {
			t.Errorf("chunkLocation(%+v) = %q, want %q", c.hit, got, c.want)
		}
	}
}
