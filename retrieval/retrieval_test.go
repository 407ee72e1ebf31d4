package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/manualkit/regent/vector"
)

type stubIndex struct {
	rounds [][]Hit
	errs   []error
	calls  int
}

func (s *stubIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.rounds) {
		return nil, nil
	}
	return s.rounds[i], nil
}

func TestChunkSetDeduplicatesByNormalizedContent(t *testing.T) {
	set := NewChunkSet()
	if !set.Add(NewChunk("The debt limit is £50,000.", "dro-manual", 0.9)) {
		t.Fatal("first insert should be new")
	}
	// Same content, different casing and spacing.
	if set.Add(NewChunk("the  DEBT limit is £50,000.", "dro-manual-v2", 0.7)) {
		t.Fatal("reformatted duplicate should be rejected")
	}
	if !set.Add(NewChunk("Assets must not exceed £2,000.", "dro-manual", 0.8)) {
		t.Fatal("distinct content should be accepted")
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	chunks := set.Chunks()
	seen := make(map[string]bool)
	for _, c := range chunks {
		if seen[c.Hash] {
			t.Fatalf("duplicate hash %s in final set", c.Hash)
		}
		seen[c.Hash] = true
	}
	// First appearance wins, so the source of the duplicate is unchanged.
	if chunks[0].SourceID != "dro-manual" {
		t.Fatalf("chunks[0].SourceID = %q, want dro-manual", chunks[0].SourceID)
	}
}

func TestChunkSetSourcesFirstAppearanceOrder(t *testing.T) {
	set := NewChunkSet()
	set.Add(NewChunk("a", "manual-b", 0.9))
	set.Add(NewChunk("b", "manual-a", 0.8))
	set.Add(NewChunk("c", "manual-b", 0.7))

	sources := set.Sources()
	if len(sources) != 2 || sources[0] != "manual-b" || sources[1] != "manual-a" {
		t.Fatalf("Sources() = %v, want [manual-b manual-a]", sources)
	}
}

func TestRunMergesRoundsWithoutDuplicates(t *testing.T) {
	index := &stubIndex{rounds: [][]Hit{
		{
			{Text: "Debts must not exceed £50,000.", SourceID: "dro", Score: 0.9},
			{Text: "Assets must not exceed £2,000.", SourceID: "dro", Score: 0.8},
		},
		{
			{Text: "debts must not exceed £50,000.", SourceID: "dro", Score: 0.85},
			{Text: "Surplus income must be £75 or less.", SourceID: "dro", Score: 0.7},
		},
	}}
	set := NewChunkSet()
	rounds, err := New(index).Run(context.Background(), []string{"debt limit", "income limit"}, set)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("len(rounds) = %d, want 2", len(rounds))
	}
	if rounds[0].NewChunks != 2 {
		t.Fatalf("rounds[0].NewChunks = %d, want 2", rounds[0].NewChunks)
	}
	if rounds[1].NewChunks != 1 {
		t.Fatalf("rounds[1].NewChunks = %d, want 1 (duplicate dropped)", rounds[1].NewChunks)
	}
	if set.Len() != 3 {
		t.Fatalf("set.Len() = %d, want 3", set.Len())
	}
}

func TestRunStopsAfterUnproductiveRound(t *testing.T) {
	repeat := []Hit{{Text: "Debts must not exceed £50,000.", SourceID: "dro", Score: 0.9}}
	index := &stubIndex{rounds: [][]Hit{repeat, repeat, repeat}}
	set := NewChunkSet()
	rounds, err := New(index).Run(context.Background(), []string{"a", "b", "c"}, set)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("len(rounds) = %d, want 2 (early stop)", len(rounds))
	}
	if index.calls != 2 {
		t.Fatalf("index.calls = %d, want 2", index.calls)
	}
	if rounds[1].NewChunks != 0 {
		t.Fatalf("rounds[1].NewChunks = %d, want 0", rounds[1].NewChunks)
	}
}

func TestRunContinuesThroughEmptyFirstRound(t *testing.T) {
	index := &stubIndex{rounds: [][]Hit{
		nil,
		{{Text: "Assets must not exceed £2,000.", SourceID: "dro", Score: 0.8}},
	}}
	set := NewChunkSet()
	rounds, err := New(index).Run(context.Background(), []string{"a", "b"}, set)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("len(rounds) = %d, want 2 (empty first round must not stop the loop)", len(rounds))
	}
	if set.Len() != 1 {
		t.Fatalf("set.Len() = %d, want 1", set.Len())
	}
}

func TestRunAbsorbsIndexErrors(t *testing.T) {
	index := &stubIndex{
		rounds: [][]Hit{
			nil,
			{{Text: "Surplus income must be £75 or less.", SourceID: "dro", Score: 0.7}},
		},
		errs: []error{errors.New("store unavailable")},
	}
	set := NewChunkSet()
	rounds, err := New(index).Run(context.Background(), []string{"a", "b"}, set)
	if err != nil {
		t.Fatalf("Run() error = %v, want degraded success", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("len(rounds) = %d, want 2", len(rounds))
	}
	if rounds[0].NewChunks != 0 || rounds[0].Hits != 0 {
		t.Fatalf("failed round should report zero hits, got %+v", rounds[0])
	}
	if set.Len() != 1 {
		t.Fatalf("set.Len() = %d, want 1", set.Len())
	}
}

func TestRunHonorsCancellationBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	index := &stubIndex{rounds: [][]Hit{{{Text: "x", SourceID: "dro", Score: 1}}}}
	rounds, err := New(index).Run(ctx, []string{"a"}, NewChunkSet())
	if err == nil {
		t.Fatal("Run() with cancelled context should return an error")
	}
	if len(rounds) != 0 {
		t.Fatalf("len(rounds) = %d, want 0", len(rounds))
	}
	if index.calls != 0 {
		t.Fatalf("index.calls = %d, want 0", index.calls)
	}
}

type axisEmbedder struct{}

func (axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch text {
	case "debt":
		return []float32{1, 0, 0}, nil
	case "income":
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0.7, 0.7, 0}, nil
	}
}

func (e axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (axisEmbedder) Dimension() int { return 3 }

type sliceStore struct {
	embeddings []*vector.Embedding
}

func (s *sliceStore) AddEmbedding(ctx context.Context, e *vector.Embedding) error {
	s.embeddings = append(s.embeddings, e)
	return nil
}

func (s *sliceStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	// Ingestion order, unranked; the index is responsible for reranking.
	if topK > len(s.embeddings) {
		topK = len(s.embeddings)
	}
	return s.embeddings[:topK], nil
}

func (s *sliceStore) DeleteEmbedding(ctx context.Context, id string) error { return nil }

func (s *sliceStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	for _, e := range s.embeddings {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *sliceStore) Clear(ctx context.Context) error {
	s.embeddings = nil
	return nil
}

func (s *sliceStore) Count(ctx context.Context) (int, error) { return len(s.embeddings), nil }

func TestVectorIndexSearchReranksByCosine(t *testing.T) {
	ctx := context.Background()
	store := &sliceStore{}
	index := NewVectorIndex(store, axisEmbedder{})

	// "income" is ingested first so the store returns it first; the rerank
	// must still put "debt" on top for a debt query.
	if err := index.Ingest(ctx, "income-manual", []string{"income"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := index.Ingest(ctx, "debt-manual", []string{"debt"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	hits, err := index.Search(ctx, "debt", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].SourceID != "debt-manual" {
		t.Fatalf("hits[0].SourceID = %q, want debt-manual", hits[0].SourceID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("hits not ranked: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestVectorIndexIngestRejectsEmptySource(t *testing.T) {
	index := NewVectorIndex(&sliceStore{}, axisEmbedder{})
	if err := index.Ingest(context.Background(), "blank", []string{"", "   "}); err == nil {
		t.Fatal("Ingest() with only blank passages should fail")
	}
}
