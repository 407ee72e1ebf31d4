package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/manualkit/regent/config"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/symbolic"
)

// MongoStore implements eligibility.ThresholdStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "regent",
		Collection: "thresholds",
	}
}

// mongoThreshold is the internal representation for MongoDB
type mongoThreshold struct {
	ID           string    `bson:"_id"`
	Topic        string    `bson:"topic"`
	Criterion    string    `bson:"criterion"`
	Value        int64     `bson:"value"`
	Operator     string    `bson:"operator"`
	Unit         string    `bson:"unit"`
	Citation     string    `bson:"citation"`
	Confidence   float64   `bson:"confidence"`
	SourceDate   time.Time `bson:"source_date,omitempty"`
	AbsTolerance int64     `bson:"abs_tolerance,omitempty"`
	PctTolerance float64   `bson:"pct_tolerance,omitempty"`
}

// NewMongoStore creates a new MongoDB-backed threshold store
func NewMongoStore(cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if err := config.ValidateMongoDBConfig(cfg.URI, cfg.Database, cfg.Collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := store.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "topic", Value: 1}},
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

func recordID(t eligibility.Threshold) string {
	return fmt.Sprintf("%s|%s|%s", t.Topic, t.Criterion, t.Citation)
}

// Put stores or replaces a threshold record
func (s *MongoStore) Put(ctx context.Context, t eligibility.Threshold) error {
	doc := mongoThreshold{
		ID:           recordID(t),
		Topic:        t.Topic,
		Criterion:    t.Criterion,
		Value:        t.Value,
		Operator:     string(t.Operator),
		Unit:         string(t.Unit),
		Citation:     t.Citation,
		Confidence:   t.Confidence,
		SourceDate:   t.SourceDate,
		AbsTolerance: t.AbsTolerance,
		PctTolerance: t.PctTolerance,
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": doc.ID}
	if _, err := s.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to store threshold in MongoDB: %w", err)
	}
	return nil
}

// Thresholds returns all records for a topic
func (s *MongoStore) Thresholds(ctx context.Context, topic string) ([]eligibility.Threshold, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"topic": topic},
		options.Find().SetSort(bson.M{"criterion": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoThreshold
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds: %w", err)
	}

	out := make([]eligibility.Threshold, 0, len(docs))
	for _, d := range docs {
		t, err := fromMongo(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func fromMongo(d mongoThreshold) (eligibility.Threshold, error) {
	op, ok := symbolic.ParseOp(d.Operator)
	if !ok {
		return eligibility.Threshold{}, fmt.Errorf("threshold %s: bad operator %q", d.ID, d.Operator)
	}
	return eligibility.Threshold{
		Topic:        d.Topic,
		Criterion:    d.Criterion,
		Value:        d.Value,
		Operator:     op,
		Unit:         symbolic.Unit(d.Unit),
		Citation:     d.Citation,
		Confidence:   d.Confidence,
		SourceDate:   d.SourceDate,
		AbsTolerance: d.AbsTolerance,
		PctTolerance: d.PctTolerance,
	}, nil
}

// Topics lists every topic with at least one record
func (s *MongoStore) Topics(ctx context.Context) ([]string, error) {
	raw, err := s.collection.Distinct(ctx, "topic", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if topic, ok := v.(string); ok {
			out = append(out, topic)
		}
	}
	return out, nil
}

// Clear removes all records for a topic
func (s *MongoStore) Clear(ctx context.Context, topic string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"topic": topic}); err != nil {
		return fmt.Errorf("failed to clear thresholds: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}

// Ping checks if the MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
