// Package classify assigns a complexity tier to a question and proposes the
// search plan the retriever executes. Classification is delegated to the
// inference service with a fixed instruction; malformed responses fall back
// to a safe default rather than failing the query.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manualkit/regent/inference"
	"github.com/manualkit/regent/pkg/logging"
)

// Tier is the coarse complexity classification driving iteration budgets.
type Tier string

const (
	TierSimple   Tier = "simple"
	TierModerate Tier = "moderate"
	TierComplex  Tier = "complex"
)

const maxQueries = 3

const classifyPrompt = `You are the triage step of a regulated-advice research system.
Classify the complexity of the user question and propose search queries for the manual corpus.

Rules:
- "simple": answerable from a single manual passage.
- "moderate": needs a couple of related passages.
- "complex": spans multiple rules, thresholds or procedures.
- Propose 1 to 3 search queries, most specific first.

Respond with JSON only, no prose:
{"tier": "simple|moderate|complex", "queries": ["..."]}

Question: %s`

// Plan is the classification result: a tier plus one to three proposed
// search queries. Degraded marks plans assembled from the fallback default
// after a malformed or failed classification.
type Plan struct {
	Tier     Tier     `json:"tier"`
	Queries  []string `json:"queries"`
	Degraded bool     `json:"-"`
}

// Budget converts the tier into a retrieval iteration budget, bounded by the
// caller-supplied maximum.
func (p Plan) Budget(maxIterations int) int {
	if maxIterations < 1 {
		maxIterations = 1
	}
	switch p.Tier {
	case TierSimple:
		return 1
	case TierModerate:
		return min(2, maxIterations)
	default:
		return maxIterations
	}
}

// Analyzer classifies questions through an inference service.
type Analyzer struct {
	svc    inference.Service
	logger *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// NewAnalyzer creates an Analyzer backed by the given inference service.
func NewAnalyzer(svc inference.Service, opts ...Option) *Analyzer {
	a := &Analyzer{
		svc:    svc,
		logger: logging.WithComponent("classify"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classify produces the plan for a question. Any failure to obtain or decode
// a well-formed response yields the moderate single-query fallback; the
// query never fails solely because classification was malformed.
func (a *Analyzer) Classify(ctx context.Context, question string) Plan {
	if a.svc == nil {
		return fallbackPlan(question)
	}

	raw, err := a.svc.Complete(ctx, fmt.Sprintf(classifyPrompt, question))
	if err != nil {
		a.logger.Warn("classification call failed, using defaults", "error", err)
		return fallbackPlan(question)
	}

	plan, err := decodeJSON[Plan](raw)
	if err != nil {
		a.logger.Warn("classification output malformed, using defaults", "error", err)
		return fallbackPlan(question)
	}
	if !validTier(plan.Tier) {
		a.logger.Warn("classification tier unknown, using defaults", "tier", plan.Tier)
		return fallbackPlan(question)
	}

	queries := make([]string, 0, maxQueries)
	for _, q := range plan.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}
	if len(queries) == 0 {
		a.logger.Warn("classification proposed no queries, using defaults")
		return fallbackPlan(question)
	}

	return Plan{Tier: plan.Tier, Queries: queries}
}

func fallbackPlan(question string) Plan {
	return Plan{
		Tier:     TierModerate,
		Queries:  []string{question},
		Degraded: true,
	}
}

func validTier(t Tier) bool {
	switch t {
	case TierSimple, TierModerate, TierComplex:
		return true
	}
	return false
}
