package eligibility

import (
	"fmt"
	"math"

	"github.com/manualkit/regent/symbolic"
)

// Status classifies one criterion evaluation.
type Status string

const (
	StatusEligible    Status = "eligible"
	StatusNotEligible Status = "not_eligible"
	StatusNearMiss    Status = "near_miss"
	StatusUnknown     Status = "unknown"
)

const (
	// unknownPenalty is subtracted from confidence for each criterion the
	// caller supplied no value for.
	unknownPenalty = 0.15

	// defaultPctTolerance is the near-miss band when a threshold sets none.
	defaultPctTolerance = 0.05
)

// CriterionStatus is the per-criterion evaluation result. All values are in
// minor units; the gap is signed with positive on the failing side.
type CriterionStatus struct {
	Criterion   string        `json:"criterion"`
	Status      Status        `json:"status"`
	ClientValue *int64        `json:"client_value,omitempty"`
	Threshold   int64         `json:"threshold_value"`
	Operator    symbolic.Op   `json:"operator"`
	Unit        symbolic.Unit `json:"unit"`
	Gap         int64         `json:"gap"`
	Explanation string        `json:"explanation"`
	Citation    string        `json:"citation,omitempty"`
}

// Evaluation aggregates criterion statuses into an overall verdict with
// remediation suggestions and prioritized recommendations.
type Evaluation struct {
	Topic           string            `json:"topic"`
	Overall         Outcome           `json:"overall_result"`
	Confidence      float64           `json:"confidence"`
	Criteria        []CriterionStatus `json:"criteria"`
	NearMisses      []string          `json:"near_misses,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Sources         []string          `json:"sources,omitempty"`
}

// Evaluate checks client values (minor units, any subset may be missing)
// against every criterion of the tree. Comparison is exact; a failing value
// within the threshold's tolerance band becomes a near miss rather than an
// outright rejection.
func (t *DecisionTree) Evaluate(clientValues map[string]int64) *Evaluation {
	ev := &Evaluation{Topic: t.Topic}

	var confSum float64
	unknowns := 0
	seenSource := map[string]bool{}

	for _, c := range t.Criteria {
		cs := evaluateCriterion(c, clientValues)
		ev.Criteria = append(ev.Criteria, cs)
		confSum += c.Threshold.Confidence
		if cs.Status == StatusUnknown {
			unknowns++
		}
		if cite := c.Threshold.Citation; cite != "" && !seenSource[cite] {
			seenSource[cite] = true
			ev.Sources = append(ev.Sources, cite)
		}
	}

	ev.Overall = aggregate(ev.Criteria)
	ev.Confidence = clamp01(confSum/float64(len(t.Criteria)) - unknownPenalty*float64(unknowns))
	ev.NearMisses, ev.Recommendations = recommend(ev.Criteria)
	return ev
}

func evaluateCriterion(c *Criterion, values map[string]int64) CriterionStatus {
	th := c.Threshold
	cs := CriterionStatus{
		Criterion: c.Name,
		Threshold: th.Value,
		Operator:  th.Operator,
		Unit:      th.Unit,
		Citation:  th.Citation,
	}
	limit := symbolic.FormatValue(th.Value, th.Unit)

	value, ok := values[c.Field]
	if !ok {
		cs.Status = StatusUnknown
		cs.Explanation = fmt.Sprintf("no value provided for %s; the limit is %s %s", c.Name, th.Operator, limit)
		return cs
	}

	v := value
	cs.ClientValue = &v
	cs.Gap = signedGap(value, th.Value, th.Operator)
	have := symbolic.FormatValue(value, th.Unit)

	if symbolic.Compare(value, th.Value, th.Operator) {
		cs.Status = StatusEligible
		cs.Explanation = fmt.Sprintf("%s of %s satisfies the %s %s limit", c.Name, have, th.Operator, limit)
		return cs
	}

	if abs64(value-th.Value) <= toleranceBand(th) {
		cs.Status = StatusNearMiss
		cs.Explanation = fmt.Sprintf("%s of %s misses the %s %s limit by %s",
			c.Name, have, th.Operator, limit, symbolic.FormatValue(cs.Gap, th.Unit))
		return cs
	}

	cs.Status = StatusNotEligible
	cs.Explanation = fmt.Sprintf("%s of %s fails the %s %s limit by %s",
		c.Name, have, th.Operator, limit, symbolic.FormatValue(cs.Gap, th.Unit))
	return cs
}

// signedGap reports how far the client value sits from the threshold, with
// positive values on the failing side of the operator.
func signedGap(value, threshold int64, op symbolic.Op) int64 {
	switch op {
	case symbolic.OpLE, symbolic.OpLT:
		return value - threshold
	case symbolic.OpGE, symbolic.OpGT:
		return threshold - value
	default:
		return abs64(value - threshold)
	}
}

// toleranceBand resolves the near-miss band for a threshold: its absolute
// tolerance if set, else its percentage tolerance, else 5%. When both are
// set the wider band applies, biasing borderline cases toward review.
func toleranceBand(th Threshold) int64 {
	var abs, pct int64
	if th.AbsTolerance > 0 {
		abs = th.AbsTolerance
	}
	if th.PctTolerance > 0 {
		pct = abs64(int64(math.Round(th.PctTolerance * float64(th.Value))))
	}
	switch {
	case abs > 0 && pct > 0:
		return max64(abs, pct)
	case abs > 0:
		return abs
	case pct > 0:
		return pct
	default:
		return abs64(int64(math.Round(defaultPctTolerance * float64(th.Value))))
	}
}

// aggregate folds criterion statuses into the overall outcome with the
// precedence not_eligible > requires_review > incomplete_information >
// eligible.
func aggregate(criteria []CriterionStatus) Outcome {
	overall := OutcomeEligible
	for _, c := range criteria {
		switch c.Status {
		case StatusNotEligible:
			overall = OutcomeNotEligible
		case StatusNearMiss:
			if overall != OutcomeNotEligible {
				overall = OutcomeReview
			}
		case StatusUnknown:
			if overall == OutcomeEligible {
				overall = OutcomeIncomplete
			}
		}
	}
	return overall
}

// recommend derives remediation suggestions for near misses and a
// prioritized recommendation list: near-miss actions first, then missing
// information, then failed criteria.
func recommend(criteria []CriterionStatus) (nearMisses, recommendations []string) {
	for _, c := range criteria {
		if c.Status != StatusNearMiss {
			continue
		}
		if r := remediation(c); r != "" {
			nearMisses = append(nearMisses, r)
			recommendations = append(recommendations, r)
		}
	}
	for _, c := range criteria {
		if c.Status == StatusUnknown {
			recommendations = append(recommendations,
				fmt.Sprintf("provide a value for %s to complete the assessment", c.Criterion))
		}
	}
	for _, c := range criteria {
		if c.Status == StatusNotEligible {
			recommendations = append(recommendations,
				fmt.Sprintf("%s; discuss alternative options with an adviser", c.Explanation))
		}
	}
	return nearMisses, recommendations
}

// remediation proposes a concrete action for a directional near miss.
func remediation(c CriterionStatus) string {
	needed := c.Gap
	switch c.Operator {
	case symbolic.OpLT, symbolic.OpGT:
		needed++ // strict comparison needs one more minor unit
	case symbolic.OpEQ:
		return "" // no direction to move in
	}
	amount := symbolic.FormatValue(needed, c.Unit)
	switch c.Operator {
	case symbolic.OpLE, symbolic.OpLT:
		return fmt.Sprintf("reduce %s by %s to qualify", c.Criterion, amount)
	default:
		return fmt.Sprintf("increase %s by %s to qualify", c.Criterion, amount)
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
