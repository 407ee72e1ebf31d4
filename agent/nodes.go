package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/manualkit/regent/classify"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
	"github.com/manualkit/regent/synthesis"
)

// Flags raised during a run. Any raised flag caps the answer label at LOW.
const (
	flagClassificationDegraded = "classification_degraded"
	flagRetrievalEmpty         = "retrieval_empty"
	flagSymbolicAmbiguous      = "symbolic_ambiguous"
	flagSynthesisDegraded      = "synthesis_degraded"
	flagMissingThreshold       = "missing_threshold"
)

// analyzeNode classifies the question into a tier and a query plan, and
// derives the retrieval budget from the tier.
func (e *Engine) analyzeNode(ctx context.Context, s *State) (*State, error) {
	plan := e.analyzer.Classify(ctx, s.Question)
	s.Tier = plan.Tier
	s.Queries = plan.Queries
	s.Budget = plan.Budget(s.MaxIterations)
	if plan.Degraded {
		s.flag(flagClassificationDegraded)
	}
	s.addStep("analyze",
		fmt.Sprintf("classified question as %s with %d planned queries and a budget of %d rounds",
			plan.Tier, len(plan.Queries), s.Budget),
		plan)
	return s, nil
}

// retrieveNode runs one retrieval round. Each visit consumes the next
// planned query, falling back to the raw question once the plan runs out.
func (e *Engine) retrieveNode(ctx context.Context, s *State) (*State, error) {
	query := s.nextQuery()
	r := retrieval.New(e.index,
		retrieval.WithConfig(retrieval.Config{TopK: s.TopK}),
		retrieval.WithLogger(e.logger))
	round := r.RunRound(ctx, query, s.Chunks)
	s.Rounds = append(s.Rounds, round)
	s.addStep("retrieve",
		fmt.Sprintf("round %d searched %q and found %d new chunks",
			len(s.Rounds), query, round.NewChunks),
		round)
	return s, nil
}

func (e *Engine) retrieveGate(ctx context.Context, s *State) (string, error) {
	if retrieval.Continue(s.Rounds, s.Budget) {
		return "again", nil
	}
	return "done", nil
}

// symbolicGate routes through symbolization when the question may involve
// magnitudes: complex tier, an eligibility check, or an explicit comparison
// claim in the question or retrieved passages.
func (e *Engine) symbolicGate(ctx context.Context, s *State) (string, error) {
	if s.wantsEligibility() || s.Tier == classify.TierComplex {
		return "symbolic", nil
	}
	if symbolic.ContainsComparisonClaim(s.Question) || symbolic.ContainsComparisonClaim(s.contextText()) {
		return "symbolic", nil
	}
	return "skip", nil
}

// symbolicNode binds every number in the question and retrieved passages to
// a generic token and evaluates explicit comparison claims exactly. Client
// values are bound in sorted field order so token numbering is stable.
func (e *Engine) symbolicNode(ctx context.Context, s *State) (*State, error) {
	res := symbolic.Symbolize(s.Question, s.contextText())

	fields := make([]string, 0, len(s.ClientValues))
	for field := range s.ClientValues {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		res.BindClient(field, s.ClientValues[field], symbolic.UnitCurrency)
	}

	if res.HasAmbiguity() {
		s.flag(flagSymbolicAmbiguous)
	}
	s.Symbolic = res
	s.addStep("symbolic",
		fmt.Sprintf("bound %d values and checked %d comparison claims",
			len(res.Variables), len(res.Comparisons)),
		res)
	return s, nil
}

// synthesizeNode produces the cited narrative answer. Synthesis never fails;
// a degraded template answer raises a flag instead.
func (e *Engine) synthesizeNode(ctx context.Context, s *State) (*State, error) {
	if s.Chunks.Len() == 0 {
		s.flag(flagRetrievalEmpty)
	}
	ans := e.synthesizer.Synthesize(ctx, synthesis.Input{
		Question: s.Question,
		Chunks:   s.Chunks.Chunks(),
		Symbolic: s.Symbolic,
		Flags:    s.Flags,
	})
	if ans.Degraded {
		s.flag(flagSynthesisDegraded)
	}
	s.Answer = &ans
	s.addStep("synthesize",
		fmt.Sprintf("composed answer citing %d sources with %s confidence",
			len(ans.Sources), ans.Label),
		ans)
	return s, nil
}

func (e *Engine) treeGate(ctx context.Context, s *State) (string, error) {
	if s.wantsEligibility() {
		return "evaluate", nil
	}
	return "done", nil
}

// treeEvalNode checks the client values against the topic's cached decision
// tree and folds the exact results into the synthesized answer. A topic with
// no cached rules yields an incomplete evaluation, not an error.
func (e *Engine) treeEvalNode(ctx context.Context, s *State) (*State, error) {
	var ev *eligibility.Evaluation
	if e.cache != nil {
		if tree, ok := e.cache.Tree(s.Topic); ok {
			ev = tree.Evaluate(s.ClientValues)
		}
	}
	if ev == nil {
		s.flag(flagMissingThreshold)
		ev = &eligibility.Evaluation{
			Topic:   s.Topic,
			Overall: eligibility.OutcomeIncomplete,
			Recommendations: []string{
				fmt.Sprintf("No eligibility rules are cached for topic %q; rebuild the topic and retry.", s.Topic),
			},
		}
	}
	s.Evaluation = ev

	ans := synthesis.Compose(*s.Answer, synthesis.Input{
		Question:   s.Question,
		Chunks:     s.Chunks.Chunks(),
		Symbolic:   s.Symbolic,
		Evaluation: ev,
		Flags:      s.Flags,
	})
	s.Answer = &ans
	s.addStep("tree_eval",
		fmt.Sprintf("evaluated %d criteria for topic %q: %s",
			len(ev.Criteria), s.Topic, ev.Overall),
		ev)
	return s, nil
}

// endNode marks the run complete. It appends no trail entry so the trail
// length equals the number of work transitions.
func (e *Engine) endNode(ctx context.Context, s *State) (*State, error) {
	s.Terminal = true
	return s, nil
}
