package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/pkg/logging"
	"github.com/manualkit/regent/textnorm"
	"github.com/manualkit/regent/vector"
)

// VectorIndexConfig tunes the similarity index.
type VectorIndexConfig struct {
	// SearchTopK is how many candidates to pull from the store before
	// reranking.
	SearchTopK int
	// MinScore drops candidates whose reranked similarity falls below it.
	MinScore float64
}

// DefaultVectorIndexConfig returns the default index configuration.
func DefaultVectorIndexConfig() VectorIndexConfig {
	return VectorIndexConfig{
		SearchTopK: 8,
		MinScore:   0.0,
	}
}

// VectorIndex is an Index backed by an embedding store. Ingested passages
// are embedded once; queries are embedded, matched against the store, and
// reranked by exact cosine similarity.
type VectorIndex struct {
	store    vector.Store
	embedder vector.Embedder
	config   VectorIndexConfig
	logger   *slog.Logger

	mu      sync.RWMutex
	sources map[string]string // embedding id -> source document id
	counts  map[string]int    // source document id -> passages ingested
}

// VectorIndexOption configures a VectorIndex.
type VectorIndexOption func(*VectorIndex)

// WithVectorIndexConfig replaces the default configuration.
func WithVectorIndexConfig(cfg VectorIndexConfig) VectorIndexOption {
	return func(v *VectorIndex) {
		v.config = cfg
	}
}

// WithVectorIndexLogger sets the logger.
func WithVectorIndexLogger(logger *slog.Logger) VectorIndexOption {
	return func(v *VectorIndex) {
		v.logger = logger
	}
}

// NewVectorIndex creates an index over the given store and embedder.
func NewVectorIndex(store vector.Store, embedder vector.Embedder, opts ...VectorIndexOption) *VectorIndex {
	v := &VectorIndex{
		store:    store,
		embedder: embedder,
		config:   DefaultVectorIndexConfig(),
		logger:   logging.WithComponent("retrieval"),
		sources:  make(map[string]string),
		counts:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Ingest embeds the passages of one source document and adds them to the
// store. Passages are cleaned before embedding; empty passages are skipped.
func (v *VectorIndex) Ingest(ctx context.Context, sourceID string, passages []string) error {
	var texts []string
	for _, p := range passages {
		if cleaned := textnorm.CleanBasic(p); cleaned != "" {
			texts = append(texts, cleaned)
		}
	}
	if len(texts) == 0 {
		return fmt.Errorf("ingest %s: %w", sourceID, errors.ErrEmptyCorpus)
	}

	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages for %s: %w", sourceID, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed passages for %s: got %d vectors for %d passages", sourceID, len(vectors), len(texts))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	start := v.counts[sourceID]
	for i, text := range texts {
		id := fmt.Sprintf("%s#%d", sourceID, start+i)
		emb := &vector.Embedding{ID: id, Vector: vectors[i], Text: text}
		if err := v.store.AddEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("store passage %s: %w", id, err)
		}
		v.sources[id] = sourceID
	}
	v.counts[sourceID] = start + len(texts)

	v.logger.Debug("ingested source",
		slog.String("source_id", sourceID),
		slog.Int("passages", len(texts)))
	return nil
}

// Search embeds the query, pulls candidates from the store, and reranks
// them by exact cosine similarity against the query vector.
func (v *VectorIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := v.config.SearchTopK
	if limit < topK {
		limit = topK
	}
	candidates, err := v.store.Search(ctx, queryVec, limit)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	v.mu.RLock()
	for _, c := range candidates {
		score := float64(vector.CosineSimilarity(queryVec, c.Vector))
		if score < v.config.MinScore {
			continue
		}
		hits = append(hits, Hit{
			Text:     c.Text,
			SourceID: v.sources[c.ID],
			Score:    score,
		})
	}
	v.mu.RUnlock()

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of embedded passages.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	return v.store.Count(ctx)
}

// Clear removes every embedding and forgets all sources.
func (v *VectorIndex) Clear(ctx context.Context) error {
	if err := v.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	v.mu.Lock()
	v.sources = make(map[string]string)
	v.counts = make(map[string]int)
	v.mu.Unlock()
	return nil
}

// sortHits orders hits by descending score, keeping the incoming order for
// ties so results stay deterministic.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
