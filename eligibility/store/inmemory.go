package store

import (
	"context"
	"sort"
	"sync"

	"github.com/manualkit/regent/eligibility"
)

// InMemoryStore implements eligibility.ThresholdStore with in-process
// storage. It backs tests and examples and is safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]eligibility.Threshold
}

// NewInMemoryStore creates an empty in-memory threshold store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]eligibility.Threshold),
	}
}

// Put stores or replaces a threshold record. Records are keyed by topic,
// criterion and citation so restatements of a limit in different manual
// passages coexist until tree-build resolution.
func (s *InMemoryStore) Put(ctx context.Context, t eligibility.Threshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic := s.records[t.Topic]
	for i, existing := range topic {
		if existing.Criterion == t.Criterion && existing.Citation == t.Citation {
			topic[i] = t
			return nil
		}
	}
	s.records[t.Topic] = append(topic, t)
	return nil
}

// Thresholds returns all records for a topic.
func (s *InMemoryStore) Thresholds(ctx context.Context, topic string) ([]eligibility.Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[topic]
	out := make([]eligibility.Threshold, len(records))
	copy(out, records)
	return out, nil
}

// Topics lists every topic with at least one record, sorted.
func (s *InMemoryStore) Topics(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for topic := range s.records {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out, nil
}

// Clear removes all records.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]eligibility.Threshold)
}

// Count returns the total number of records across topics.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, records := range s.records {
		n += len(records)
	}
	return n
}
