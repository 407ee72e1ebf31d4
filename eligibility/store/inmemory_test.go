package store

import (
	"context"
	"testing"

	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/symbolic"
)

func TestInMemoryStorePutAndList(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	debt := eligibility.Threshold{
		Topic:      "dro_eligibility",
		Criterion:  "total_debt",
		Value:      5000000,
		Operator:   symbolic.OpLE,
		Unit:       symbolic.UnitCurrency,
		Citation:   "dro-manual-ch45",
		Confidence: 0.9,
	}
	if err := s.Put(ctx, debt); err != nil {
		t.Fatalf("put: %v", err)
	}
	income := debt
	income.Criterion = "disposable_income"
	income.Value = 7500
	if err := s.Put(ctx, income); err != nil {
		t.Fatalf("put: %v", err)
	}

	records, err := s.Thresholds(ctx, "dro_eligibility")
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	topics, err := s.Topics(ctx)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(topics) != 1 || topics[0] != "dro_eligibility" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestInMemoryStoreUpsertsByCitation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first := eligibility.Threshold{
		Topic:     "dro_eligibility",
		Criterion: "total_debt",
		Value:     3000000,
		Operator:  symbolic.OpLE,
		Citation:  "dro-manual-ch45",
	}
	updated := first
	updated.Value = 5000000

	if err := s.Put(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, updated); err != nil {
		t.Fatalf("put: %v", err)
	}

	records, _ := s.Thresholds(ctx, "dro_eligibility")
	if len(records) != 1 {
		t.Fatalf("same citation must replace, got %d records", len(records))
	}
	if records[0].Value != 5000000 {
		t.Fatalf("stale value %d", records[0].Value)
	}

	// a different citation is a distinct record, resolved at tree build
	other := updated
	other.Citation = "dro-manual-ch46"
	other.Value = 4000000
	if err := s.Put(ctx, other); err != nil {
		t.Fatalf("put: %v", err)
	}
	records, _ = s.Thresholds(ctx, "dro_eligibility")
	if len(records) != 2 {
		t.Fatalf("distinct citations must coexist, got %d records", len(records))
	}
}
