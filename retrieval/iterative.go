package retrieval

import (
	"context"
	"log/slog"

	"github.com/manualkit/regent/pkg/logging"
)

// Round records one executed retrieval round. Rounds that add nothing new
// still consume budget.
type Round struct {
	Query     string `json:"query"`
	Hits      int    `json:"hits"`
	NewChunks int    `json:"new_chunks"`
}

// Config tunes the iterative retriever.
type Config struct {
	// TopK is how many hits to request from the index per round.
	TopK int
}

// DefaultConfig returns the default retriever configuration.
func DefaultConfig() Config {
	return Config{TopK: 4}
}

// Retriever runs bounded rounds of index searches, merging hits into a
// chunk set keyed by content hash.
type Retriever struct {
	index  Index
	config Config
	logger *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(r *Retriever) {
		r.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// New creates a retriever over the given index.
func New(index Index, opts ...Option) *Retriever {
	r := &Retriever{
		index:  index,
		config: DefaultConfig(),
		logger: logging.WithComponent("retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunRound executes a single search round, merging hits into set. Index
// failures are absorbed as empty rounds so a flaky index degrades the answer
// instead of failing it.
func (r *Retriever) RunRound(ctx context.Context, query string, set *ChunkSet) Round {
	hits, err := r.index.Search(ctx, query, r.config.TopK)
	if err != nil {
		r.logger.Warn("retrieval round failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		hits = nil
	}

	fresh := 0
	for _, h := range hits {
		if set.Add(NewChunk(h.Text, h.SourceID, h.Score)) {
			fresh++
		}
	}
	return Round{Query: query, Hits: len(hits), NewChunks: fresh}
}

// Continue reports whether another round is worth running: the budget must
// not be exhausted, and once any round has produced chunks, a later round
// that produced none ends the search.
func Continue(rounds []Round, budget int) bool {
	if budget <= 0 || len(rounds) >= budget {
		return false
	}
	if len(rounds) == 0 {
		return true
	}
	if rounds[len(rounds)-1].NewChunks > 0 {
		return true
	}
	for _, rd := range rounds[:len(rounds)-1] {
		if rd.NewChunks > 0 {
			return false
		}
	}
	return true
}

// Run executes one round per query, in order, merging hits into set and
// stopping per the Continue policy. Cancellation is checked between rounds;
// the round in flight always completes.
func (r *Retriever) Run(ctx context.Context, queries []string, set *ChunkSet) ([]Round, error) {
	rounds := make([]Round, 0, len(queries))
	for _, query := range queries {
		if !Continue(rounds, len(queries)) {
			r.logger.Debug("stopping retrieval early",
				slog.Int("rounds", len(rounds)),
				slog.Int("chunks", set.Len()))
			break
		}
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		rounds = append(rounds, r.RunRound(ctx, query, set))
	}
	return rounds, nil
}
