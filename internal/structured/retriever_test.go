package structured

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func newTestRetriever(t *testing.T) (*Retriever, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRetriever(store, zap.NewNop()), store
}

func TestValidateCodes(t *testing.T) {
	if err := ValidateCodes([]string{"C124", "ab1234"}); err != nil {
		t.Errorf("valid codes rejected: %v", err)
	}
	if err := ValidateCodes([]string{"C124; DROP TABLE"}); err == nil {
		t.Error("malformed code accepted")
	}
	if err := ValidateCodes([]string{"1234"}); err == nil {
		t.Error("digit-only code accepted")
	}
}

func TestRetrieveByCode(t *testing.T) {
	r, store := newTestRetriever(t)
	if err := store.SeedFeeCode(&storage.FeeCode{
		Code: "C124", Description: "Standard consultation", Fee: 31.00, Billable: true,
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := r.Retrieve(context.Background(), models.Params{Codes: []string{"c124"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Table != "fee_schedule" || hits[0].EntityID != "C124" {
		t.Errorf("unexpected hit %+v", hits[0])
	}
	if hits[0].Fields["fee"] != 31.00 {
		t.Errorf("expected fee 31.00, got %v", hits[0].Fields["fee"])
	}
}

func TestRetrieveDropsMalformedCodes(t *testing.T) {
	r, _ := newTestRetriever(t)
	hits, err := r.Retrieve(context.Background(), models.Params{Codes: []string{"not a code!"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for malformed code, got %d", len(hits))
	}
}

func TestRetrieveInterchangeGroupTieBreak(t *testing.T) {
	r, store := newTestRetriever(t)
	entries := []*storage.FormularyEntry{
		{ID: "F001", DrugName: "Apixaban", InterchangeGroup: "doac", Covered: true, Preferred: false},
		{ID: "F002", DrugName: "Rivaroxaban", InterchangeGroup: "doac", Covered: true, Preferred: true},
	}
	for _, fe := range entries {
		if err := store.SeedFormulary(fe); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := r.Retrieve(context.Background(), models.Params{Entity: "apixaban", Category: "formulary"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected full interchange group, got %d hits", len(hits))
	}
	// preferred member first, despite being found via the group expansion
	if hits[0].EntityID != "F002" || !hits[0].Preferred {
		t.Errorf("expected preferred F002 first, got %+v", hits[0])
	}

	// repeated query yields identical ordering
	again, err := r.Retrieve(context.Background(), models.Params{Entity: "apixaban", Category: "formulary"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range hits {
		if hits[i].EntityID != again[i].EntityID {
			t.Fatalf("ordering not stable at %d: %s vs %s", i, hits[i].EntityID, again[i].EntityID)
		}
	}
}

func TestRetrieveDeviceByEntity(t *testing.T) {
	r, store := newTestRetriever(t)
	if err := store.SeedDeviceRule(&storage.DeviceRule{
		ID: "D010", Name: "CPAP machine", Funded: true, Criteria: "diagnosed OSA",
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := r.Retrieve(context.Background(), models.Params{Entity: "cpap machine"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Table != "device_rules" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[0].Fields["funded"] != true {
		t.Error("expected funded true")
	}
}

func TestRetrieveNothing(t *testing.T) {
	r, _ := newTestRetriever(t)
	hits, err := r.Retrieve(context.Background(), models.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for empty params, got %d", len(hits))
	}
}
