package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/manualkit/regent/classify"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/graph"
	"github.com/manualkit/regent/inference"
	"github.com/manualkit/regent/pkg/logging"
	"github.com/manualkit/regent/pkg/telemetry"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/synthesis"
)

// Config bounds query processing.
type Config struct {
	// MaxIterations caps retrieval rounds per query; request values above it
	// are clamped.
	MaxIterations int
	// TopK is the default per-round retrieval depth.
	TopK int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 3,
		TopK:          4,
	}
}

// Engine runs the reasoning machine. It is safe for concurrent use: each
// query gets a fresh State, and the threshold cache and retrieval index are
// read-only during query processing.
type Engine struct {
	index       retrieval.Index
	analyzer    *classify.Analyzer
	synthesizer *synthesis.Synthesizer
	cache       *eligibility.Cache
	machine     *graph.Graph[*State]
	config      Config
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCache attaches the threshold cache used for eligibility checks.
func WithCache(cache *eligibility.Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithAnalyzer replaces the question analyzer.
func WithAnalyzer(a *classify.Analyzer) Option {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithSynthesizer replaces the answer synthesizer.
func WithSynthesizer(s *synthesis.Synthesizer) Option {
	return func(e *Engine) {
		e.synthesizer = s
	}
}

// New creates an engine over an inference service and a retrieval index.
// Either may be nil: a nil service degrades classification and synthesis to
// their fallbacks, and a nil index makes every retrieval round empty.
func New(svc inference.Service, index retrieval.Index, opts ...Option) *Engine {
	e := &Engine{
		index:  index,
		config: DefaultConfig(),
		logger: logging.WithComponent("agent"),
		tracer: telemetry.Tracer("agent"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.analyzer == nil {
		e.analyzer = classify.NewAnalyzer(svc)
	}
	if e.synthesizer == nil {
		e.synthesizer = synthesis.New(svc)
	}
	e.machine = e.buildMachine()
	return e
}

// buildMachine wires the fixed query workflow:
//
//	analyze -> retrieve -> (more rounds?) -> (symbolic?) -> synthesize
//	        -> (eligibility?) -> tree_eval -> end
//
// Work nodes append one trail entry each; gates only route.
func (e *Engine) buildMachine() *graph.Graph[*State] {
	return graph.NewBuilder[*State]().
		AddNode("analyze", graph.NodeTypeStart, e.traced("analyze", e.analyzeNode)).
		AddNode("retrieve", graph.NodeTypeStep, e.traced("retrieve", e.retrieveNode)).
		AddConditionNode("retrieve_gate", e.retrieveGate, map[string]string{
			"again": "retrieve",
			"done":  "symbolic_gate",
		}).
		AddConditionNode("symbolic_gate", e.symbolicGate, map[string]string{
			"symbolic": "symbolic",
			"skip":     "synthesize",
		}).
		AddNode("symbolic", graph.NodeTypeStep, e.traced("symbolic", e.symbolicNode)).
		AddNode("synthesize", graph.NodeTypeStep, e.traced("synthesize", e.synthesizeNode)).
		AddConditionNode("tree_gate", e.treeGate, map[string]string{
			"evaluate": "tree_eval",
			"done":     "end",
		}).
		AddNode("tree_eval", graph.NodeTypeStep, e.traced("tree_eval", e.treeEvalNode)).
		AddNode("end", graph.NodeTypeEnd, e.endNode).
		AddEdge("analyze", "retrieve").
		AddEdge("retrieve", "retrieve_gate").
		AddEdge("symbolic", "synthesize").
		AddEdge("synthesize", "tree_gate").
		AddEdge("tree_eval", "end").
		SetMaxVisits(e.config.MaxIterations + 4).
		Build()
}

// traced wraps a node with a span so each step shows up in traces.
func (e *Engine) traced(name string, fn graph.NodeFunc[*State]) graph.NodeFunc[*State] {
	return func(ctx context.Context, s *State) (*State, error) {
		ctx, span := e.tracer.Start(ctx, "agent."+name)
		out, err := fn(ctx, s)
		telemetry.End(span, err)
		return out, err
	}
}

// Query answers a free-form question. Downstream degradations are absorbed
// into confidence and flags; only unprocessable input fails.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.ErrEmptyQuestion
	}

	ctx, span := e.tracer.Start(ctx, "agent.query",
		trace.WithAttributes(attribute.String("topic", req.Topic)))
	s, err := e.run(ctx, question, req.Topic, nil, req.MaxIterations, req.TopK)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Answer:         s.Answer.Text,
		Sources:        s.Answer.Sources,
		IterationsUsed: s.IterationsUsed(),
		Confidence:     string(s.Answer.Label),
	}
	if req.showReasoning() {
		resp.ReasoningSteps = s.Trail
	}
	return resp, nil
}

// CheckEligibility answers an eligibility question and evaluates the
// supplied client values against the topic's cached rules.
func (e *Engine) CheckEligibility(ctx context.Context, req EligibilityRequest) (*EligibilityResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.ErrEmptyQuestion
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", errors.ErrUnknownTopic)
	}
	minor, err := validateClientValues(req.ClientValues)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "agent.eligibility",
		trace.WithAttributes(attribute.String("topic", topic)))
	s, err := e.run(ctx, question, topic, minor, 0, 0)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}

	ev := s.Evaluation
	resp := &EligibilityResponse{
		Answer:          s.Answer.Text,
		OverallResult:   string(ev.Overall),
		Confidence:      ev.Confidence,
		Criteria:        criterionViews(ev.Criteria),
		NearMisses:      ev.NearMisses,
		Recommendations: ev.Recommendations,
		Sources:         s.Answer.Sources,
		IterationsUsed:  s.IterationsUsed(),
		ReasoningSteps:  s.Trail,
	}
	if req.IncludeDiagram && e.cache != nil {
		if tree, ok := e.cache.Tree(topic); ok {
			resp.Diagram = tree.Diagram()
		}
	}
	return resp, nil
}

// Rebuild replaces the cached thresholds and decision tree for one topic.
// In-flight queries keep the snapshot they started with.
func (e *Engine) Rebuild(ctx context.Context, topic string) (*RebuildResponse, error) {
	if e.cache == nil {
		return nil, fmt.Errorf("rebuild %q: no threshold cache configured", topic)
	}
	tree, err := e.cache.Rebuild(ctx, topic)
	if err != nil {
		return nil, err
	}
	e.logger.Info("rebuilt topic",
		slog.String("topic", topic),
		slog.Int("criteria", len(tree.Criteria)))
	return &RebuildResponse{Topic: topic, Criteria: len(tree.Criteria)}, nil
}

// run executes the machine over a fresh state.
func (e *Engine) run(ctx context.Context, question, topic string, clientValues map[string]int64, maxIterations, topK int) (*State, error) {
	s := newState(question)
	s.Topic = topic
	s.ClientValues = clientValues
	s.MaxIterations = clampIterations(maxIterations, e.config.MaxIterations)
	s.TopK = clampTopK(topK, e.config.TopK)

	s, err := e.machine.Execute(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("query aborted: %w", err)
	}
	return s, nil
}

func clampIterations(requested, limit int) int {
	if limit < 1 {
		limit = 1
	}
	if requested < 1 || requested > limit {
		return limit
	}
	return requested
}

func clampTopK(requested, fallback int) int {
	if requested < 1 {
		return fallback
	}
	return requested
}
