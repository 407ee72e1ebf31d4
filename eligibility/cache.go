package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/pkg/logging"
)

// snapshot is one immutable generation of trees and threshold records.
type snapshot struct {
	trees      map[string]*DecisionTree
	thresholds map[string][]Threshold
	builtAt    time.Time
}

// Cache holds the read-only threshold snapshot queries evaluate against.
// Rebuilds construct the next generation off to the side and swap it in
// atomically; in-flight queries keep the snapshot they started with, so
// readers never lock.
type Cache struct {
	store  ThresholdStore
	logger *slog.Logger

	mu   sync.Mutex // serializes writers; readers go through snap only
	snap atomic.Pointer[snapshot]
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheLogger overrides the component logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache creates an empty cache backed by a threshold store. Call Load to
// populate it.
func NewCache(store ThresholdStore, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		logger: logging.WithComponent("eligibility"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap.Store(&snapshot{
		trees:      map[string]*DecisionTree{},
		thresholds: map[string][]Threshold{},
		builtAt:    time.Now().UTC(),
	})
	return c
}

// Load builds trees for every topic the store knows about and installs them
// as the current snapshot. Topics whose build fails are skipped with a
// warning rather than failing the whole load.
func (c *Cache) Load(ctx context.Context) error {
	topics, err := c.store.Topics(ctx)
	if err != nil {
		return fmt.Errorf("load threshold topics: %w", err)
	}

	next := &snapshot{
		trees:      make(map[string]*DecisionTree, len(topics)),
		thresholds: make(map[string][]Threshold, len(topics)),
		builtAt:    time.Now().UTC(),
	}
	for _, topic := range topics {
		records, err := c.store.Thresholds(ctx, topic)
		if err != nil {
			return fmt.Errorf("load thresholds for %q: %w", topic, err)
		}
		tree, err := Build(topic, records)
		if err != nil {
			c.logger.Warn("skipping topic", "topic", topic, "error", err)
			continue
		}
		next.trees[topic] = tree
		next.thresholds[topic] = records
	}

	c.mu.Lock()
	c.snap.Store(next)
	c.mu.Unlock()
	c.logger.Info("threshold cache loaded", "topics", len(next.trees))
	return nil
}

// Tree returns the current decision tree for a topic.
func (c *Cache) Tree(topic string) (*DecisionTree, bool) {
	t, ok := c.snap.Load().trees[topic]
	return t, ok
}

// Thresholds returns the current records for a topic.
func (c *Cache) Thresholds(topic string) []Threshold {
	return c.snap.Load().thresholds[topic]
}

// Topics lists the topics in the current snapshot, sorted.
func (c *Cache) Topics() []string {
	snap := c.snap.Load()
	out := make([]string, 0, len(snap.trees))
	for topic := range snap.trees {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Rebuild re-reads one topic from the store, builds its tree aside, and
// swaps in a snapshot containing it. Other topics are carried over
// unchanged.
func (c *Cache) Rebuild(ctx context.Context, topic string) (*DecisionTree, error) {
	if topic == "" {
		return nil, fmt.Errorf("rebuild: %w", errors.ErrUnknownTopic)
	}
	records, err := c.store.Thresholds(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("rebuild %q: %w", topic, err)
	}
	tree, err := Build(topic, records)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.snap.Load()
	next := &snapshot{
		trees:      make(map[string]*DecisionTree, len(cur.trees)+1),
		thresholds: make(map[string][]Threshold, len(cur.thresholds)+1),
		builtAt:    time.Now().UTC(),
	}
	for k, v := range cur.trees {
		next.trees[k] = v
	}
	for k, v := range cur.thresholds {
		next.thresholds[k] = v
	}
	next.trees[topic] = tree
	next.thresholds[topic] = records
	c.snap.Store(next)

	c.logger.Info("decision tree rebuilt", "topic", topic, "criteria", len(tree.Criteria))
	return tree, nil
}
