package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/manualkit/regent/config"
	"github.com/manualkit/regent/eligibility"
)

// RedisStore implements eligibility.ThresholdStore using Redis
type RedisStore struct {
	client *redis.Client
	prefix string // Key prefix for namespacing
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string // Redis server address (e.g., "localhost:6379")
	Password string // Redis password (if any)
	DB       int    // Redis database number
	Prefix   string // Key prefix for namespacing
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "regent:threshold:",
	}
}

// NewRedisStore creates a new Redis-backed threshold store
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if err := config.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (s *RedisStore) recordKey(t eligibility.Threshold) string {
	return fmt.Sprintf("%srec:%s:%s:%s", s.prefix, t.Topic, t.Criterion, t.Citation)
}

func (s *RedisStore) topicKey(topic string) string {
	return fmt.Sprintf("%stopic:%s", s.prefix, topic)
}

func (s *RedisStore) topicsKey() string {
	return s.prefix + "topics"
}

// Put stores or replaces a threshold record
func (s *RedisStore) Put(ctx context.Context, t eligibility.Threshold) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal threshold: %w", err)
	}

	key := s.recordKey(t)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store threshold in Redis: %w", err)
	}
	if err := s.client.SAdd(ctx, s.topicKey(t.Topic), key).Err(); err != nil {
		return fmt.Errorf("failed to index threshold key: %w", err)
	}
	if err := s.client.SAdd(ctx, s.topicsKey(), t.Topic).Err(); err != nil {
		return fmt.Errorf("failed to index topic: %w", err)
	}
	return nil
}

// Thresholds returns all records for a topic
func (s *RedisStore) Thresholds(ctx context.Context, topic string) ([]eligibility.Threshold, error) {
	keys, err := s.client.SMembers(ctx, s.topicKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threshold keys: %w", err)
	}
	if len(keys) == 0 {
		return []eligibility.Threshold{}, nil
	}

	out := make([]eligibility.Threshold, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				// Key removed out of band, drop it from the index
				s.client.SRem(ctx, s.topicKey(topic), key)
				continue
			}
			return nil, fmt.Errorf("failed to get threshold: %w", err)
		}
		var t eligibility.Threshold
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal threshold: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Topics lists every topic with at least one record
func (s *RedisStore) Topics(ctx context.Context) ([]string, error) {
	topics, err := s.client.SMembers(ctx, s.topicsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

// Clear removes all records for a topic
func (s *RedisStore) Clear(ctx context.Context, topic string) error {
	keys, err := s.client.SMembers(ctx, s.topicKey(topic)).Result()
	if err != nil {
		return fmt.Errorf("failed to list threshold keys: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete thresholds: %w", err)
		}
	}
	if err := s.client.Del(ctx, s.topicKey(topic)).Err(); err != nil {
		return fmt.Errorf("failed to delete topic index: %w", err)
	}
	if err := s.client.SRem(ctx, s.topicsKey(), topic).Err(); err != nil {
		return fmt.Errorf("failed to unindex topic: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
