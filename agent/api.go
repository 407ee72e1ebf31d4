package agent

import (
	"fmt"

	"github.com/manualkit/regent/config"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/symbolic"
)

// QueryRequest asks a free-form question against the ingested manuals.
type QueryRequest struct {
	Question      string `json:"question"`
	Topic         string `json:"topic,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	TopK          int    `json:"top_k,omitempty"`
	ShowReasoning *bool  `json:"show_reasoning,omitempty"`
}

func (r QueryRequest) showReasoning() bool {
	return r.ShowReasoning == nil || *r.ShowReasoning
}

// QueryResponse is the answer to a free-form question.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	IterationsUsed int      `json:"iterations_used"`
	Confidence     string   `json:"confidence"`
	ReasoningSteps []Step   `json:"reasoning_steps,omitempty"`
}

// EligibilityRequest checks client values against the cached rules of one
// topic. Values are major units (pounds), converted internally to pence.
type EligibilityRequest struct {
	Question       string             `json:"question"`
	Topic          string             `json:"topic"`
	ClientValues   map[string]float64 `json:"client_values"`
	IncludeDiagram bool               `json:"include_diagram,omitempty"`
}

// CriterionView is the per-criterion result in caller units.
type CriterionView struct {
	Criterion   string   `json:"criterion"`
	Threshold   float64  `json:"threshold_value"`
	ClientValue *float64 `json:"client_value,omitempty"`
	Status      string   `json:"status"`
	Gap         float64  `json:"gap"`
	Operator    string   `json:"operator"`
	Explanation string   `json:"explanation"`
}

// EligibilityResponse is the structured verdict for an eligibility check.
type EligibilityResponse struct {
	Answer          string          `json:"answer"`
	OverallResult   string          `json:"overall_result"`
	Confidence      float64         `json:"confidence"`
	Criteria        []CriterionView `json:"criteria"`
	NearMisses      []string        `json:"near_misses,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Sources         []string        `json:"sources"`
	IterationsUsed  int             `json:"iterations_used"`
	Diagram         string          `json:"diagram,omitempty"`
	ReasoningSteps  []Step          `json:"reasoning_steps,omitempty"`
}

// RebuildResponse reports a completed threshold cache rebuild for a topic.
type RebuildResponse struct {
	Topic    string `json:"topic"`
	Criteria int    `json:"criteria"`
}

// validateClientValues rejects malformed client values before any state
// machine work happens and converts the rest to minor units.
func validateClientValues(values map[string]float64) (map[string]int64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: at least one client value is required", errors.ErrInvalidClientValue)
	}
	if err := config.ValidateClientValues(values); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidClientValue, err)
	}
	minor := make(map[string]int64, len(values))
	for field, value := range values {
		minor[field] = symbolic.ToMinor(value)
	}
	return minor, nil
}

// criterionViews converts evaluation results back to the caller's units.
func criterionViews(criteria []eligibility.CriterionStatus) []CriterionView {
	views := make([]CriterionView, 0, len(criteria))
	for _, cs := range criteria {
		view := CriterionView{
			Criterion:   cs.Criterion,
			Threshold:   symbolic.FromMinor(cs.Threshold),
			Status:      string(cs.Status),
			Gap:         symbolic.FromMinor(cs.Gap),
			Operator:    string(cs.Operator),
			Explanation: cs.Explanation,
		}
		if cs.ClientValue != nil {
			v := symbolic.FromMinor(*cs.ClientValue)
			view.ClientValue = &v
		}
		views = append(views, view)
	}
	return views
}
