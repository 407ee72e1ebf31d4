// Package retrieval executes the bounded, deduplicated search rounds of the
// reasoning engine against a similarity index.
package retrieval

import "github.com/manualkit/regent/textnorm"

// Chunk is one retrieved span of manual text. The content hash identifies
// the chunk across rounds; two spans that differ only in casing or
// whitespace share a hash.
type Chunk struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
	Hash     string  `json:"hash"`
}

// NewChunk builds a chunk with its content hash computed over the
// normalized text.
func NewChunk(text, sourceID string, score float64) Chunk {
	return Chunk{
		Text:     text,
		SourceID: sourceID,
		Score:    score,
		Hash:     textnorm.Hash(text),
	}
}

// ChunkSet is an insertion-ordered set of chunks deduplicated by content
// hash. Insertion order is preserved so citation numbering follows first
// appearance, regardless of which round produced the chunk.
type ChunkSet struct {
	chunks []Chunk
	seen   map[string]struct{}
}

// NewChunkSet creates an empty set.
func NewChunkSet() *ChunkSet {
	return &ChunkSet{seen: make(map[string]struct{})}
}

// Add inserts a chunk unless its content hash is already present and
// reports whether the chunk was new. A chunk with no hash is hashed first.
func (s *ChunkSet) Add(c Chunk) bool {
	if c.Hash == "" {
		c.Hash = textnorm.Hash(c.Text)
	}
	if _, dup := s.seen[c.Hash]; dup {
		return false
	}
	s.seen[c.Hash] = struct{}{}
	s.chunks = append(s.chunks, c)
	return true
}

// Len returns the number of distinct chunks.
func (s *ChunkSet) Len() int {
	return len(s.chunks)
}

// Chunks returns the chunks in first-appearance order.
func (s *ChunkSet) Chunks() []Chunk {
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Sources returns the distinct source document ids in first-appearance
// order.
func (s *ChunkSet) Sources() []string {
	seen := make(map[string]struct{}, len(s.chunks))
	var out []string
	for _, c := range s.chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		out = append(out, c.SourceID)
	}
	return out
}
