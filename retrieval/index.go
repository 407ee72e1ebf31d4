package retrieval

import "context"

// Hit is one similarity match returned by an index.
type Hit struct {
	Text     string
	SourceID string
	Score    float64
}

// Index answers similarity queries over an ingested manual corpus.
type Index interface {
	// Search returns up to topK hits for the query, best first.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}
