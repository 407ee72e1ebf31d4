// Package synthesis composes the final cited answer from retrieved manual
// passages and the exact findings computed upstream. The inference service
// only words the answer; every number it mentions was verified before the
// prompt was built.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/inference"
	"github.com/manualkit/regent/pkg/logging"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
)

// Label is the coarse confidence attached to an answer.
type Label string

const (
	LabelHigh   Label = "HIGH"
	LabelMedium Label = "MEDIUM"
	LabelLow    Label = "LOW"
)

// Input carries everything the synthesizer may draw on for one answer.
type Input struct {
	Question string
	Chunks   []retrieval.Chunk

	// Symbolic is the symbolization of the question and retrieved context,
	// when the symbolic step ran. The prompt then shows tokenized text so
	// the model never sees raw magnitudes.
	Symbolic *symbolic.Result

	// Evaluation is the decision-tree result, when an eligibility check ran.
	Evaluation *eligibility.Evaluation

	// Flags are degradation markers accumulated upstream that should lower
	// the confidence label, such as an ambiguous parse.
	Flags []string
}

// Answer is the synthesized result.
type Answer struct {
	Text     string   `json:"text"`
	Sources  []string `json:"sources"`
	Label    Label    `json:"label"`
	Score    float64  `json:"score"`
	HasScore bool     `json:"-"`
	Degraded bool     `json:"degraded,omitempty"`
}

// Tokenizer counts prompt tokens so context assembly respects the model
// window. contrib/tokenizer provides a tiktoken-backed implementation.
type Tokenizer interface {
	CountTokens(text string) int
}

// Config tunes answer synthesis.
type Config struct {
	// TokenBudget caps the tokens spent on context passages in the prompt.
	TokenBudget int
	// Attempts is how many times to call the inference service before
	// falling back to the templated answer.
	Attempts int
	// MaxTemplateChunks caps how many passages the templated fallback quotes.
	MaxTemplateChunks int
}

// DefaultConfig returns the default synthesis configuration.
func DefaultConfig() Config {
	return Config{
		TokenBudget:       3000,
		Attempts:          3,
		MaxTemplateChunks: 3,
	}
}

// Synthesizer produces cited answers, degrading to a template when the
// inference service is unavailable.
type Synthesizer struct {
	svc       inference.Service
	tokenizer Tokenizer
	config    Config
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Synthesizer) {
		s.config = cfg
	}
}

// WithTokenizer sets the token counter used for the context budget.
func WithTokenizer(t Tokenizer) Option {
	return func(s *Synthesizer) {
		s.tokenizer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// New creates a synthesizer over the given inference service. A nil service
// is allowed and always produces the templated fallback.
func New(svc inference.Service, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		svc:    svc,
		config: DefaultConfig(),
		logger: logging.WithComponent("synthesis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces the final answer. It never fails: when the inference
// service errors or times out after retries, the answer is assembled from
// the retrieved text and evaluation results instead, marked degraded with
// confidence forced to LOW.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Answer {
	sources := collectSources(in)
	ans := Answer{Sources: sources}
	if in.Evaluation != nil {
		ans.Score = in.Evaluation.Confidence
		ans.HasScore = true
	}

	text, degraded := s.compose(ctx, in, sources)
	ans.Text = text
	ans.Degraded = degraded
	ans.Label = deriveLabel(in, degraded)
	return ans
}

func (s *Synthesizer) compose(ctx context.Context, in Input, sources []string) (string, bool) {
	if s.svc == nil {
		return templateAnswer(in, sources, s.config.MaxTemplateChunks), true
	}

	prompt := s.buildPrompt(in, sources)
	out, err := inference.CompleteWithRetry(ctx, s.svc, prompt, s.config.Attempts, func(raw string) error {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("empty completion")
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("synthesis degraded to template",
			slog.String("provider", s.svc.Name()),
			slog.String("error", err.Error()))
		return templateAnswer(in, sources, s.config.MaxTemplateChunks), true
	}

	text := strings.TrimSpace(out)
	if in.Symbolic != nil {
		text = restoreTokens(text, in.Symbolic.Variables)
	}
	return text, false
}

// Compose folds a tree evaluation into an already synthesized answer. The
// evaluation section is rendered from the exact results, never reworded by
// the model; the numeric score and label are rederived with the evaluation
// present.
func Compose(ans Answer, in Input) Answer {
	if in.Evaluation == nil {
		return ans
	}
	out := ans
	out.Sources = mergeSources(ans.Sources, in.Evaluation.Sources)

	var b strings.Builder
	writeEvaluationSummary(&b, in.Evaluation, out.Sources)
	if narrative := strings.TrimSpace(ans.Text); narrative != "" {
		b.WriteString("\n\n")
		b.WriteString(narrative)
	}
	out.Text = b.String()
	out.Score = in.Evaluation.Confidence
	out.HasScore = true
	out.Label = deriveLabel(in, ans.Degraded)
	return out
}

func mergeSources(sources, extra []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources)+len(extra))
	for _, s := range sources {
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range extra {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// collectSources returns the distinct source document ids cited by the
// answer: chunk sources in first-appearance order, then evaluation citations
// not already present. Citation markers index into this list.
func collectSources(in Input) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, c := range in.Chunks {
		add(c.SourceID)
	}
	if in.Evaluation != nil {
		for _, src := range in.Evaluation.Sources {
			add(src)
		}
	}
	return out
}

// citationIndex maps a source id to its 1-based citation marker.
func citationIndex(sources []string, id string) int {
	for i, s := range sources {
		if s == id {
			return i + 1
		}
	}
	return 0
}

// deriveLabel grades the answer. Degradation or any doubt flag forces LOW;
// HIGH requires both corroborating sources and an exact resolved finding.
func deriveLabel(in Input, degraded bool) Label {
	if degraded || len(in.Chunks) == 0 || hasDoubt(in) {
		return LabelLow
	}
	corroborated := distinctChunkSources(in.Chunks) >= 2
	if corroborated && hasResolvedFinding(in) {
		return LabelHigh
	}
	return LabelMedium
}

// hasDoubt reports whether any unknown or ambiguous marker is present.
func hasDoubt(in Input) bool {
	if len(in.Flags) > 0 {
		return true
	}
	if in.Symbolic != nil {
		for _, c := range in.Symbolic.Comparisons {
			if c.Ambiguous {
				return true
			}
			if c.Left.UnitUnknown || c.Right.UnitUnknown {
				return true
			}
		}
	}
	if in.Evaluation != nil {
		for _, cs := range in.Evaluation.Criteria {
			if cs.Status == eligibility.StatusUnknown {
				return true
			}
		}
	}
	return false
}

// hasResolvedFinding reports whether an exact result directly tied to the
// caller's question exists: a clean comparison with a question- or
// client-sourced operand, or a completed tree evaluation.
func hasResolvedFinding(in Input) bool {
	if in.Evaluation != nil {
		return true
	}
	if in.Symbolic == nil {
		return false
	}
	for _, c := range in.Symbolic.Comparisons {
		if c.Ambiguous {
			continue
		}
		if c.Left.Source != symbolic.SourceContext || c.Right.Source != symbolic.SourceContext {
			return true
		}
	}
	return false
}

func distinctChunkSources(chunks []retrieval.Chunk) int {
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		seen[c.SourceID] = struct{}{}
	}
	return len(seen)
}

// restoreTokens rewrites variable tokens in the model output back to the
// surface text they replaced. Later tokens are restored first so VAR_1 never
// clobbers VAR_12.
func restoreTokens(text string, vars []*symbolic.Variable) string {
	for i := len(vars) - 1; i >= 0; i-- {
		text = strings.ReplaceAll(text, vars[i].Token, vars[i].Surface)
	}
	return text
}
