package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/eligibility/store"
	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
	"github.com/manualkit/regent/synthesis"
)

// scriptedService answers the triage prompt with a fixed plan and every
// other prompt with a fixed answer.
type scriptedService struct {
	plan   string
	answer string
	err    error
	calls  int
}

func (s *scriptedService) Complete(_ context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if strings.Contains(prompt, "triage step") {
		return s.plan, nil
	}
	return s.answer, nil
}

func (s *scriptedService) Name() string { return "scripted" }

// staticIndex returns the same hits for every query.
type staticIndex struct {
	hits  []retrieval.Hit
	calls int
}

func (i *staticIndex) Search(_ context.Context, _ string, _ int) ([]retrieval.Hit, error) {
	i.calls++
	return i.hits, nil
}

// freshIndex returns a previously unseen passage on every call, so each
// retrieval round stays productive.
type freshIndex struct {
	calls int
}

func (i *freshIndex) Search(_ context.Context, _ string, _ int) ([]retrieval.Hit, error) {
	i.calls++
	return []retrieval.Hit{{
		Text:     fmt.Sprintf("Passage %d of the manual.", i.calls),
		SourceID: fmt.Sprintf("DMHB-%d", i.calls),
		Score:    0.9,
	}}, nil
}

func guidanceHits() []retrieval.Hit {
	return []retrieval.Hit{
		{Text: "A debt relief order requires total debts at or below the limit.", SourceID: "DMHB-45", Score: 0.92},
		{Text: "Surplus income and assets are also capped for a debt relief order.", SourceID: "DMHB-45", Score: 0.84},
	}
}

func seededCache(t *testing.T) *eligibility.Cache {
	t.Helper()
	ctx := context.Background()
	st := store.NewInMemoryStore()
	thresholds := []eligibility.Threshold{
		{Topic: "debt_relief_order", Criterion: "total_debt", Value: 50000_00, Operator: symbolic.OpLE,
			Unit: symbolic.UnitCurrency, Citation: "DMHB-45", Confidence: 0.9, AbsTolerance: 2000_00},
		{Topic: "debt_relief_order", Criterion: "surplus_income", Value: 75_00, Operator: symbolic.OpLE,
			Unit: symbolic.UnitCurrency, Citation: "DMHB-46", Confidence: 0.9},
		{Topic: "debt_relief_order", Criterion: "assets", Value: 2000_00, Operator: symbolic.OpLE,
			Unit: symbolic.UnitCurrency, Citation: "DMHB-47", Confidence: 0.85},
	}
	for _, th := range thresholds {
		if err := st.Put(ctx, th); err != nil {
			t.Fatalf("Put(%s): %v", th.Criterion, err)
		}
	}
	cache := eligibility.NewCache(st)
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cache
}

func TestQueryAnswersWithCitations(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "moderate", "queries": ["debt relief order limits"]}`,
		answer: "A debt relief order caps total debt [1].",
	}
	idx := &staticIndex{hits: guidanceHits()}
	engine := New(svc, idx)

	resp, err := engine.Query(context.Background(), QueryRequest{
		Question: "What are the limits for a debt relief order?",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !strings.Contains(resp.Answer, "[1]") {
		t.Errorf("answer missing citation marker: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "DMHB-45" {
		t.Errorf("sources = %v, want [DMHB-45]", resp.Sources)
	}
	if resp.Confidence != string(synthesis.LabelMedium) {
		t.Errorf("confidence = %q, want MEDIUM", resp.Confidence)
	}
	// Moderate tier budgets two rounds; the second finds nothing new.
	if resp.IterationsUsed != 2 {
		t.Errorf("iterations = %d, want 2", resp.IterationsUsed)
	}
	wantSteps := []string{"analyze", "retrieve", "retrieve", "synthesize"}
	if len(resp.ReasoningSteps) != len(wantSteps) {
		t.Fatalf("got %d reasoning steps, want %d", len(resp.ReasoningSteps), len(wantSteps))
	}
	for i, want := range wantSteps {
		if resp.ReasoningSteps[i].Step != want {
			t.Errorf("step[%d] = %q, want %q", i, resp.ReasoningSteps[i].Step, want)
		}
	}
}

func TestQueryHidesReasoningOnRequest(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "simple", "queries": ["dro fees"]}`,
		answer: "The fee is set out in the manual [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()})

	hide := false
	resp, err := engine.Query(context.Background(), QueryRequest{
		Question:      "What is the fee?",
		ShowReasoning: &hide,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.ReasoningSteps != nil {
		t.Errorf("reasoning steps should be omitted, got %d", len(resp.ReasoningSteps))
	}
}

func TestQueryEmptyQuestionFails(t *testing.T) {
	engine := New(&scriptedService{}, &staticIndex{})

	_, err := engine.Query(context.Background(), QueryRequest{Question: "   "})
	if !stderrors.Is(err, errors.ErrEmptyQuestion) {
		t.Fatalf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestQuerySimpleTierUsesOneRound(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "simple", "queries": ["moratorium period length"]}`,
		answer: "The moratorium lasts twelve months [1].",
	}
	idx := &staticIndex{hits: guidanceHits()}
	engine := New(svc, idx)

	resp, err := engine.Query(context.Background(), QueryRequest{Question: "How long is the moratorium?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.IterationsUsed != 1 {
		t.Errorf("iterations = %d, want 1", resp.IterationsUsed)
	}
	if idx.calls != 1 {
		t.Errorf("index searched %d times, want 1", idx.calls)
	}
}

func TestQueryComplexTierBoundedByMaxIterations(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "complex", "queries": ["dro limits", "dro exclusions", "dro process"]}`,
		answer: "It spans several rules [1][2][3].",
	}
	idx := &freshIndex{}
	engine := New(svc, idx)

	// A productive index never triggers the early stop; the budget does.
	resp, err := engine.Query(context.Background(), QueryRequest{
		Question:      "Walk through every debt relief order rule.",
		MaxIterations: 99,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.IterationsUsed != 3 {
		t.Errorf("iterations = %d, want 3", resp.IterationsUsed)
	}
	if idx.calls != 3 {
		t.Errorf("index searched %d times, want 3", idx.calls)
	}
}

func TestQueryDegradedInferenceStillAnswers(t *testing.T) {
	svc := &scriptedService{err: stderrors.New("model offline")}
	engine := New(svc, &staticIndex{hits: guidanceHits()},
		WithSynthesizer(synthesis.New(svc, synthesis.WithConfig(synthesis.Config{
			TokenBudget:       3000,
			Attempts:          1,
			MaxTemplateChunks: 3,
		}))))

	resp, err := engine.Query(context.Background(), QueryRequest{Question: "What are the limits?"})
	if err != nil {
		t.Fatalf("Query should absorb inference failure, got %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("degraded answer is empty")
	}
	if resp.Confidence != string(synthesis.LabelLow) {
		t.Errorf("confidence = %q, want LOW", resp.Confidence)
	}
	if len(resp.Sources) == 0 {
		t.Error("degraded answer should still cite the retrieved chunks")
	}
}

func TestQueryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := New(&scriptedService{plan: `{"tier": "simple", "queries": ["q"]}`}, &staticIndex{})
	_, err := engine.Query(ctx, QueryRequest{Question: "anything"})
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestQueryTrailCoversSymbolicStep(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "moderate", "queries": ["debt limit"]}`,
		answer: "VAR_1 exceeds VAR_2, so the answer is no [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()})

	resp, err := engine.Query(context.Background(), QueryRequest{
		Question: "Is £51,000 over the £50,000 limit?",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	wantSteps := []string{"analyze", "retrieve", "retrieve", "symbolic", "synthesize"}
	if len(resp.ReasoningSteps) != len(wantSteps) {
		t.Fatalf("got %d reasoning steps, want %d: %+v", len(resp.ReasoningSteps), len(wantSteps), resp.ReasoningSteps)
	}
	for i, want := range wantSteps {
		if resp.ReasoningSteps[i].Step != want {
			t.Errorf("step[%d] = %q, want %q", i, resp.ReasoningSteps[i].Step, want)
		}
	}
	if strings.Contains(resp.Answer, "VAR_") {
		t.Errorf("tokens leaked into the answer: %q", resp.Answer)
	}
}

func TestCheckEligibilityEligible(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "complex", "queries": ["debt relief order criteria"]}`,
		answer: "All three limits are satisfied [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()}, WithCache(seededCache(t)))

	resp, err := engine.CheckEligibility(context.Background(), EligibilityRequest{
		Question: "Does this client qualify for a debt relief order?",
		Topic:    "debt_relief_order",
		ClientValues: map[string]float64{
			"total_debt":     45000,
			"surplus_income": 70,
			"assets":         1500,
		},
	})
	if err != nil {
		t.Fatalf("CheckEligibility: %v", err)
	}
	if resp.OverallResult != string(eligibility.OutcomeEligible) {
		t.Errorf("overall = %q, want eligible", resp.OverallResult)
	}
	if math.Abs(resp.Confidence-0.8833) > 0.01 {
		t.Errorf("confidence = %.4f, want about 0.8833", resp.Confidence)
	}
	if len(resp.Criteria) != 3 {
		t.Fatalf("got %d criteria, want 3", len(resp.Criteria))
	}
	for _, c := range resp.Criteria {
		if c.Status != string(eligibility.StatusEligible) {
			t.Errorf("criterion %s status = %q, want eligible", c.Criterion, c.Status)
		}
	}
	// Chunk sources come first, then threshold citations in criteria order.
	want := []string{"DMHB-45", "DMHB-47", "DMHB-46"}
	if len(resp.Sources) != len(want) {
		t.Fatalf("sources = %v, want %v", resp.Sources, want)
	}
	for i, s := range want {
		if resp.Sources[i] != s {
			t.Errorf("sources[%d] = %q, want %q", i, resp.Sources[i], s)
		}
	}
	if !strings.Contains(resp.Answer, "Eligibility result for debt_relief_order: eligible.") {
		t.Errorf("answer missing evaluation summary: %q", resp.Answer)
	}
	last := resp.ReasoningSteps[len(resp.ReasoningSteps)-1]
	if last.Step != "tree_eval" {
		t.Errorf("last step = %q, want tree_eval", last.Step)
	}
}

func TestCheckEligibilityNearMiss(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "complex", "queries": ["debt relief order criteria"]}`,
		answer: "The debt is just over the limit [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()}, WithCache(seededCache(t)))

	resp, err := engine.CheckEligibility(context.Background(), EligibilityRequest{
		Question: "Does this client qualify for a debt relief order?",
		Topic:    "debt_relief_order",
		ClientValues: map[string]float64{
			"total_debt":     51000,
			"surplus_income": 70,
			"assets":         1500,
		},
	})
	if err != nil {
		t.Fatalf("CheckEligibility: %v", err)
	}
	if resp.OverallResult != string(eligibility.OutcomeReview) {
		t.Errorf("overall = %q, want requires_review", resp.OverallResult)
	}
	if len(resp.NearMisses) != 1 || !strings.Contains(resp.NearMisses[0], "reduce total_debt") {
		t.Errorf("near misses = %v, want one suggesting a total_debt reduction", resp.NearMisses)
	}

	var debt *CriterionView
	for i := range resp.Criteria {
		if resp.Criteria[i].Criterion == "total_debt" {
			debt = &resp.Criteria[i]
		}
	}
	if debt == nil {
		t.Fatal("total_debt criterion missing")
	}
	if debt.Status != string(eligibility.StatusNearMiss) {
		t.Errorf("total_debt status = %q, want near_miss", debt.Status)
	}
	if debt.Gap != 1000 {
		t.Errorf("total_debt gap = %v, want 1000", debt.Gap)
	}
	if debt.ClientValue == nil || *debt.ClientValue != 51000 {
		t.Errorf("total_debt client value = %v, want 51000", debt.ClientValue)
	}
	if debt.Threshold != 50000 {
		t.Errorf("total_debt threshold = %v, want 50000", debt.Threshold)
	}
}

func TestCheckEligibilityUnknownTopic(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "moderate", "queries": ["budgeting loan criteria"]}`,
		answer: "No cached rules cover this [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()}, WithCache(seededCache(t)))

	resp, err := engine.CheckEligibility(context.Background(), EligibilityRequest{
		Question:     "Does this client qualify?",
		Topic:        "budgeting_loan",
		ClientValues: map[string]float64{"total_debt": 1000},
	})
	if err != nil {
		t.Fatalf("unknown topic should degrade, not fail: %v", err)
	}
	if resp.OverallResult != string(eligibility.OutcomeIncomplete) {
		t.Errorf("overall = %q, want incomplete_information", resp.OverallResult)
	}
	if resp.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", resp.Confidence)
	}
	if len(resp.Recommendations) == 0 || !strings.Contains(resp.Recommendations[0], "rebuild") {
		t.Errorf("recommendations = %v, want a rebuild hint", resp.Recommendations)
	}
}

func TestCheckEligibilityRejectsBadValues(t *testing.T) {
	engine := New(&scriptedService{}, &staticIndex{}, WithCache(seededCache(t)))
	ctx := context.Background()

	cases := []struct {
		name   string
		values map[string]float64
	}{
		{"empty", nil},
		{"nan", map[string]float64{"total_debt": math.NaN()}},
		{"negative", map[string]float64{"total_debt": -5}},
		{"huge", map[string]float64{"total_debt": 2e13}},
	}
	for _, tc := range cases {
		_, err := engine.CheckEligibility(ctx, EligibilityRequest{
			Question:     "Does this client qualify?",
			Topic:        "debt_relief_order",
			ClientValues: tc.values,
		})
		if !stderrors.Is(err, errors.ErrInvalidClientValue) {
			t.Errorf("%s: err = %v, want ErrInvalidClientValue", tc.name, err)
		}
	}
}

func TestCheckEligibilityRequiresTopic(t *testing.T) {
	engine := New(&scriptedService{}, &staticIndex{})

	_, err := engine.CheckEligibility(context.Background(), EligibilityRequest{
		Question:     "Does this client qualify?",
		ClientValues: map[string]float64{"total_debt": 100},
	})
	if !stderrors.Is(err, errors.ErrUnknownTopic) {
		t.Fatalf("err = %v, want ErrUnknownTopic", err)
	}
}

func TestCheckEligibilityIncludesDiagram(t *testing.T) {
	svc := &scriptedService{
		plan:   `{"tier": "complex", "queries": ["debt relief order criteria"]}`,
		answer: "All limits hold [1].",
	}
	engine := New(svc, &staticIndex{hits: guidanceHits()}, WithCache(seededCache(t)))

	resp, err := engine.CheckEligibility(context.Background(), EligibilityRequest{
		Question:       "Does this client qualify?",
		Topic:          "debt_relief_order",
		ClientValues:   map[string]float64{"total_debt": 45000},
		IncludeDiagram: true,
	})
	if err != nil {
		t.Fatalf("CheckEligibility: %v", err)
	}
	if !strings.Contains(resp.Diagram, "flowchart") {
		t.Errorf("diagram = %q, want a mermaid flowchart", resp.Diagram)
	}
}

func TestRebuildSwapsTopic(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seed := eligibility.Threshold{
		Topic: "debt_relief_order", Criterion: "total_debt", Value: 50000_00,
		Operator: symbolic.OpLE, Unit: symbolic.UnitCurrency, Citation: "DMHB-45", Confidence: 0.9,
	}
	if err := st.Put(ctx, seed); err != nil {
		t.Fatalf("Put: %v", err)
	}
	cache := eligibility.NewCache(st)
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine := New(&scriptedService{}, &staticIndex{}, WithCache(cache))

	extra := seed
	extra.Criterion = "surplus_income"
	extra.Value = 75_00
	if err := st.Put(ctx, extra); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp, err := engine.Rebuild(ctx, "debt_relief_order")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if resp.Criteria != 2 {
		t.Errorf("criteria = %d, want 2", resp.Criteria)
	}
	tree, ok := cache.Tree("debt_relief_order")
	if !ok || len(tree.Criteria) != 2 {
		t.Errorf("cache tree not swapped: ok=%v criteria=%d", ok, len(tree.Criteria))
	}
}

func TestRebuildWithoutCacheFails(t *testing.T) {
	engine := New(&scriptedService{}, &staticIndex{})

	if _, err := engine.Rebuild(context.Background(), "debt_relief_order"); err == nil {
		t.Fatal("expected error when no cache is configured")
	}
}
