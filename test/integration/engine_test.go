// Package integration exercises the full query pipeline against real storage
// and a populated vector index.
package integration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/engine"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/semantic"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/structured"
	"github.com/hyperjump/kotae/internal/vector"
)

const dims = 8

type fixture struct {
	store  *storage.SQLiteStore
	index  *vector.MemoryIndex
	cfg    *config.Config
	engine *engine.Engine
	cache  *engine.ResultCache
}

func setup(t *testing.T, withCache bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = dims
	cfg.Retrieval.StructuredTimeoutMs = 2000
	cfg.Retrieval.SemanticTimeoutMs = 2000

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "kotae.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	seed(t, store)

	embedder := embedding.NewMockEmbedder(dims)
	index, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { index.Close() })
	indexChunks(t, store, embedder, index)

	logger := zap.NewNop()
	chain := extract.NewChain(logger, extract.NewPatternExtractor())
	structuredRetriever := structured.NewRetriever(store, logger)
	semanticRetriever := semantic.NewRetriever(embedder, index, store, cfg.Retrieval.Oversample, logger)
	fuser := fusion.NewFuser(&cfg.Fusion, fusion.NewCitationBuilder(cfg.Citation.TrustedSources))

	var cache *engine.ResultCache
	if withCache {
		cache = engine.NewResultCache(32, "", logger)
	}

	eng := engine.NewEngine(chain, structuredRetriever, semanticRetriever, nil,
		fuser, cache, store, &cfg.Retrieval, logger)

	return &fixture{store: store, index: index, cfg: cfg, engine: eng, cache: cache}
}

var seedChunks = []*storage.Chunk{
	{
		ID: "ch-fee", DocumentID: "funding-manual-2026", Section: "3.2", Page: 41,
		Category: "fees",
		Content:  "Code C124 attracts a fee of 31.00 and remains billable for standard consultations.",
	},
	{
		ID: "ch-fee-b", DocumentID: "funding-manual-2026", Section: "3.2", Page: 41,
		Category: "fees",
		Content:  "Item C124 is billable at 31.00 where the consultation exceeds ten minutes.",
	},
	{
		ID: "ch-delisted", DocumentID: "funding-manual-2026", Section: "9.1", Page: 88,
		Category: "fees",
		Content:  "Code C710 is no longer billable following the July review.",
	},
	{
		ID: "ch-drug", DocumentID: "schedule-guide-2026", Section: "5.4", Page: 12,
		Category: "formulary",
		Content:  "Metformin is covered on the formulary with a 5.00 copay.",
	},
	{
		ID: "ch-dev", DocumentID: "funding-manual-2026", Section: "12.3", Page: 140,
		Category: "devices",
		Content:  "Wheelchair applications require a mobility assessment by an occupational therapist.",
	},
}

func seed(t *testing.T, store *storage.SQLiteStore) {
	t.Helper()
	fees := []*storage.FeeCode{
		{Code: "C124", Description: "Standard consultation", Fee: 31.00, Category: "consultations", Billable: true},
		{Code: "C710", Description: "Extended procedure", Fee: 12.50, Category: "procedures", Billable: true},
		{Code: "K030", Description: "After-hours loading", Fee: 8.75, Category: "loadings", Billable: true},
	}
	for _, fc := range fees {
		if err := store.SeedFeeCode(fc); err != nil {
			t.Fatal(err)
		}
	}

	formulary := []*storage.FormularyEntry{
		{ID: "met-01", DrugName: "metformin", DrugClass: "biguanide", InterchangeGroup: "BIG-1", Covered: true, Preferred: true, Copay: 5.00},
		{ID: "met-02", DrugName: "metformin xr", DrugClass: "biguanide", InterchangeGroup: "BIG-1", Covered: true, Preferred: false, Copay: 7.50},
	}
	for _, fe := range formulary {
		if err := store.SeedFormulary(fe); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.SeedDeviceRule(&storage.DeviceRule{
		ID: "wc-01", Name: "wheelchair", Category: "mobility", Funded: true,
		Criteria: "mobility assessment by an occupational therapist",
	}); err != nil {
		t.Fatal(err)
	}

	for _, c := range seedChunks {
		if err := store.SeedChunk(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetDataVersion("1"); err != nil {
		t.Fatal(err)
	}
}

func indexChunks(t *testing.T, store *storage.SQLiteStore, embedder embedding.Embedder, index *vector.MemoryIndex) {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, len(seedChunks))
	vectors := make([][]float32, 0, len(seedChunks))
	for _, c := range seedChunks {
		vec, err := embedder.Embed(ctx, c.Content)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, c.ID)
		vectors = append(vectors, vec)
	}
	if err := index.Add(ctx, ids, vectors); err != nil {
		t.Fatal(err)
	}
}

func TestStructuredOnlyLookup(t *testing.T) {
	f := setup(t, false)

	// explicit filter, no text: the semantic path has nothing to embed
	result, err := f.engine.Query(context.Background(), &models.Query{
		Filters: models.Params{Codes: []string{"K030"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Provenance) != 1 || result.Provenance[0] != models.SourceStructured {
		t.Fatalf("expected structured-only provenance, got %v", result.Provenance)
	}
	if result.Confidence < 0.70 || result.Confidence > 0.80 {
		t.Errorf("confidence out of structured-only band: %f", result.Confidence)
	}
	if len(result.Items) != 1 || result.Items[0].EntityID != "K030" {
		t.Errorf("unexpected items %+v", result.Items)
	}
	if len(result.Citations) != 1 || !result.Citations[0].Trusted {
		t.Errorf("expected one trusted citation, got %+v", result.Citations)
	}
}

func TestAgreementRaisesConfidence(t *testing.T) {
	f := setup(t, false)

	result, err := f.engine.Query(context.Background(), &models.Query{
		Text: "is code C124 billable",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Provenance) != 2 {
		t.Fatalf("expected both paths in provenance, got %v", result.Provenance)
	}
	if result.Confidence < 0.85 || result.Confidence > 0.99 {
		t.Errorf("confidence out of agreement band: %f", result.Confidence)
	}
	if result.Conflict {
		t.Errorf("unexpected conflict: %s", result.ConflictDetail)
	}
}

func TestConflictFlaggedAndPenalized(t *testing.T) {
	f := setup(t, false)

	result, err := f.engine.Query(context.Background(), &models.Query{
		Text: "is code C710 billable",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Conflict {
		t.Fatal("expected conflict between fee schedule and delisting notice")
	}
	if result.ConflictDetail == "" {
		t.Error("conflict must carry detail")
	}
	want := f.cfg.Fusion.StructuredOnlyBase - f.cfg.Fusion.ConflictPenalty
	if result.Confidence != want {
		t.Errorf("expected penalized confidence %f, got %f", want, result.Confidence)
	}

	// both the row and the contradicting passage survive in the items
	var hasRow, hasPassage bool
	for _, item := range result.Items {
		if item.Source == models.SourceStructured && item.EntityID == "C710" {
			hasRow = true
		}
		if item.Source == models.SourceSemantic && item.ChunkID == "ch-delisted" {
			hasPassage = true
		}
	}
	if !hasRow || !hasPassage {
		t.Errorf("conflicting evidence must be retained, got %+v", result.Items)
	}
}

func TestInterchangeGroupExpansion(t *testing.T) {
	f := setup(t, false)

	result, err := f.engine.Query(context.Background(), &models.Query{
		Text: "is metformin covered",
	})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, item := range result.Items {
		if item.Source == models.SourceStructured {
			ids = append(ids, item.EntityID)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected the full interchange group, got %v", ids)
	}
	if ids[0] != "met-01" {
		t.Errorf("preferred member must rank first, got %v", ids)
	}
	if result.Confidence < 0.85 {
		t.Errorf("covered drug with corroborating passage should reach agreement band: %f", result.Confidence)
	}
}

func TestSemanticOnlyAnswer(t *testing.T) {
	f := setup(t, false)

	result, err := f.engine.Query(context.Background(), &models.Query{
		Text: "what documentation is needed when applying for wheelchair equipment",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Provenance) != 1 || result.Provenance[0] != models.SourceSemantic {
		t.Fatalf("expected semantic-only provenance, got %v", result.Provenance)
	}
	if result.Confidence < 0.60 || result.Confidence > 0.75 {
		t.Errorf("confidence out of semantic-only band: %f", result.Confidence)
	}
}

func TestNoEvidence(t *testing.T) {
	f := setup(t, false)

	result, err := f.engine.Query(context.Background(), &models.Query{
		Filters: models.Params{Codes: []string{"Z999"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.NoEvidence() {
		t.Fatalf("expected no-evidence result, got %+v", result)
	}
	if result.Confidence != 0 {
		t.Errorf("no-evidence confidence must be 0, got %f", result.Confidence)
	}
}

func TestRepeatQueryByteIdentical(t *testing.T) {
	f := setup(t, false)
	q := &models.Query{Text: "is code C124 billable"}

	first, err := f.engine.Query(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Query(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("repeat query differs:\n%s\n%s", a, b)
	}
}

func TestCitationDedup(t *testing.T) {
	f := setup(t, false)

	// ch-fee and ch-fee-b share document, section, and page
	result, err := f.engine.Query(context.Background(), &models.Query{
		Text: "is code C124 billable",
	})
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, c := range result.Citations {
		if c.Source == "funding-manual-2026" && c.Location == "3.2:p41" {
			count++
			if !c.Trusted {
				t.Error("funding-manual- prefix should mark the source trusted")
			}
		}
	}
	if count != 1 {
		t.Errorf("expected one citation for the shared location, got %d", count)
	}
}

func TestCacheInvalidatedByDataVersion(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	q := &models.Query{Text: "is code C124 billable"}

	if _, err := f.engine.Query(ctx, q); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Query(ctx, q); err != nil {
		t.Fatal(err)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("identical queries must share one cache entry, got %d", f.cache.Len())
	}

	if err := f.store.SetDataVersion("2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Query(ctx, q); err != nil {
		t.Fatal(err)
	}
	if f.cache.Len() != 2 {
		t.Errorf("data refresh must produce a new cache entry, got %d", f.cache.Len())
	}
}
