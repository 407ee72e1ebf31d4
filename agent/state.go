// Package agent orchestrates one query at a time through the reasoning
// machine: classify the question, retrieve iteratively, extract numeric
// claims for exact evaluation, synthesize a cited answer, and optionally
// evaluate client values against cached eligibility rules.
package agent

import (
	"strings"

	"github.com/manualkit/regent/classify"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
	"github.com/manualkit/regent/synthesis"
)

// Step is one reasoning-trail entry. Every work node appends exactly one;
// routing decisions append none.
type Step struct {
	Step        string `json:"step"`
	Description string `json:"description"`
	Result      any    `json:"result,omitempty"`
}

// State is the single mutable record threaded through the machine for one
// query. A fresh State is created per query; queries share nothing else but
// the read-only caches.
type State struct {
	Question     string
	Topic        string
	ClientValues map[string]int64 // minor units, validated at the boundary

	MaxIterations int
	TopK          int

	Tier    classify.Tier
	Queries []string
	Budget  int

	Chunks *retrieval.ChunkSet
	Rounds []retrieval.Round

	Symbolic   *symbolic.Result
	Evaluation *eligibility.Evaluation
	Answer     *synthesis.Answer

	Flags    []string
	Trail    []Step
	Terminal bool
}

func newState(question string) *State {
	return &State{
		Question: question,
		Chunks:   retrieval.NewChunkSet(),
	}
}

// addStep appends one reasoning-trail entry.
func (s *State) addStep(name, description string, result any) {
	s.Trail = append(s.Trail, Step{Step: name, Description: description, Result: result})
}

// flag records a degradation marker once.
func (s *State) flag(f string) {
	for _, existing := range s.Flags {
		if existing == f {
			return
		}
	}
	s.Flags = append(s.Flags, f)
}

// IterationsUsed reports how many retrieval rounds ran.
func (s *State) IterationsUsed() int {
	return len(s.Rounds)
}

// nextQuery returns the planned query for the upcoming round, refined from
// the question and topic once the plan is exhausted.
func (s *State) nextQuery() string {
	if n := len(s.Rounds); n < len(s.Queries) {
		return s.Queries[n]
	}
	if s.Topic != "" {
		return s.Topic + " " + s.Question
	}
	return s.Question
}

// contextText joins the retrieved chunks in citation order for
// symbolization.
func (s *State) contextText() string {
	chunks := s.Chunks.Chunks()
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

// wantsEligibility reports whether the caller explicitly requested an
// eligibility check.
func (s *State) wantsEligibility() bool {
	return s.Topic != "" && len(s.ClientValues) > 0
}
