package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/symbolic"
)

// Outcome is an overall eligibility verdict.
type Outcome string

const (
	OutcomeEligible    Outcome = "eligible"
	OutcomeNotEligible Outcome = "not_eligible"
	OutcomeReview      Outcome = "requires_review"
	OutcomeIncomplete  Outcome = "incomplete_information"
)

// NodeKind discriminates decision tree nodes.
type NodeKind string

const (
	NodeCriterion NodeKind = "criterion"
	NodeRule      NodeKind = "rule"
	NodeOutcome   NodeKind = "outcome"
)

// RuleOp combines child nodes of a rule.
type RuleOp string

const (
	RuleAll RuleOp = "AND"
	RuleAny RuleOp = "OR"
)

// Criterion tests one client-value field against one threshold.
type Criterion struct {
	Name      string    `json:"name"`
	Field     string    `json:"field"`
	Threshold Threshold `json:"threshold"`
}

// Node is one vertex of a decision tree: a criterion test, an AND/OR rule
// over children, or a terminal outcome. Rules link to outcome leaves through
// OnPass and OnFail.
type Node struct {
	Kind      NodeKind   `json:"kind"`
	Criterion *Criterion `json:"criterion,omitempty"`
	Op        RuleOp     `json:"op,omitempty"`
	Children  []*Node    `json:"children,omitempty"`
	OnPass    *Node      `json:"on_pass,omitempty"`
	OnFail    *Node      `json:"on_fail,omitempty"`
	Outcome   Outcome    `json:"outcome,omitempty"`
}

// DecisionTree is the immutable evaluation structure for one topic. Built
// once from the threshold records, rebuilt on demand, never mutated.
type DecisionTree struct {
	Topic       string       `json:"topic"`
	Root        *Node        `json:"root"`
	Criteria    []*Criterion `json:"criteria"`
	Resolutions []Resolution `json:"resolutions,omitempty"`
	BuiltAt     time.Time    `json:"built_at"`
}

// Build constructs the decision tree for a topic from its threshold records:
// an AND rule over one criterion node per threshold, terminating in outcome
// leaves. Criteria are ordered by name so repeated builds are identical.
// Duplicate criterion names are resolved per resolveDuplicates and recorded.
func Build(topic string, thresholds []Threshold) (*DecisionTree, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("build tree for topic %q: %w", topic, errors.ErrUnknownTopic)
	}

	resolved, resolutions := resolveDuplicates(thresholds)

	criteria := make([]*Criterion, 0, len(resolved))
	children := make([]*Node, 0, len(resolved))
	for _, t := range resolved {
		c := &Criterion{
			Name:      t.Criterion,
			Field:     t.Criterion,
			Threshold: t,
		}
		criteria = append(criteria, c)
		children = append(children, &Node{Kind: NodeCriterion, Criterion: c})
	}

	root := &Node{
		Kind:     NodeRule,
		Op:       RuleAll,
		Children: children,
		OnPass:   &Node{Kind: NodeOutcome, Outcome: OutcomeEligible},
		OnFail:   &Node{Kind: NodeOutcome, Outcome: OutcomeNotEligible},
	}

	return &DecisionTree{
		Topic:       topic,
		Root:        root,
		Criteria:    criteria,
		Resolutions: resolutions,
		BuiltAt:     time.Now().UTC(),
	}, nil
}

// Diagram renders the tree as a Mermaid flowchart for callers that request
// a visual explanation alongside the answer.
func (t *DecisionTree) Diagram() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	fmt.Fprintf(&b, "    start([%s]) --> c0\n", t.Topic)
	for i, c := range t.Criteria {
		label := fmt.Sprintf("%s %s %s", c.Name, c.Threshold.Operator,
			symbolic.FormatValue(c.Threshold.Value, c.Threshold.Unit))
		fmt.Fprintf(&b, "    c%d{\"%s\"}\n", i, label)
		fmt.Fprintf(&b, "    c%d -->|no| fail[not_eligible]\n", i)
		if i < len(t.Criteria)-1 {
			fmt.Fprintf(&b, "    c%d -->|yes| c%d\n", i, i+1)
		} else {
			fmt.Fprintf(&b, "    c%d -->|yes| pass[eligible]\n", i)
		}
	}
	return b.String()
}
