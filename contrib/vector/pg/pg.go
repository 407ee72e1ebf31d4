// Package pg implements vector.Store on PostgreSQL with the pgvector
// extension.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/manualkit/regent/config"
	"github.com/manualkit/regent/errors"
	"github.com/manualkit/regent/vector"
)

// Config holds pgvector connection and schema configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // embedding dimension (1536 for OpenAI text-embedding-3-small)
	TableName string
	IndexType string // HNSW or IVFFLAT
}

// DefaultConfig returns the default pgvector configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "regent",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "manual_vectors",
		IndexType: "HNSW",
	}
}

// Store is a vector.Store backed by a pgvector table. Rows are ordered by
// cosine distance so search results agree with the engine's in-process
// cosine rerank.
type Store struct {
	db        *sql.DB
	dimension int
	table     string
}

// New opens the database, enables the pgvector extension and creates the
// table if missing.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := config.ValidatePGVectorConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password,
		cfg.DBName, cfg.SSLMode, cfg.Dimension, cfg.TableName, cfg.IndexType); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping PostgreSQL: %w", err)
	}

	s := &Store{
		db:        db,
		dimension: cfg.Dimension,
		table:     cfg.TableName,
	}
	if err := s.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("setup pgvector: %w", err)
	}
	return s, nil
}

func (s *Store) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.table, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// AddEmbedding inserts or replaces an embedding row.
func (s *Store) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil")
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty")
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding.Vector))
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, text, embedding)
	VALUES ($1, $2, $3::vector)
	ON CONFLICT (id) DO UPDATE SET
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, embedding.ID, embedding.Text, vectorToString(embedding.Vector)); err != nil {
		return fmt.Errorf("add embedding: %w", err)
	}
	return nil
}

// Search returns the topK nearest rows by cosine distance.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(queryVector))
	}
	if topK <= 0 {
		topK = 10
	}

	query := fmt.Sprintf(`
	SELECT id, text, embedding
	FROM %s
	ORDER BY embedding %s $1::vector
	LIMIT $2
	`, s.table, vector.CosineSimilarityOperator())

	rows, err := s.db.QueryContext(ctx, query, vectorToString(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	out := make([]*vector.Embedding, 0, topK)
	for rows.Next() {
		var id, text, raw string
		if err := rows.Scan(&id, &text, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := stringToVector(raw)
		if err != nil {
			return nil, fmt.Errorf("parse vector for %s: %w", id, err)
		}
		out = append(out, &vector.Embedding{ID: id, Text: text, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// DeleteEmbedding removes a row by ID.
func (s *Store) DeleteEmbedding(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), id)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}
	return nil
}

// GetEmbedding retrieves a row by ID.
func (s *Store) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf("SELECT id, text, embedding FROM %s WHERE id = $1", s.table)

	var embID, text, raw string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&embID, &text, &raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}

	vec, err := stringToVector(raw)
	if err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return &vector.Embedding{ID: embID, Text: text, Vector: vec}, nil
}

// Clear removes every row.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table)); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// vectorToString renders a vector in pgvector text format: [0.1,0.2,...].
func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringToVector(str string) ([]float32, error) {
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		var v float32
		n, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &v)
		if err != nil || n != 1 {
			return nil, fmt.Errorf("parse vector component %d: %q", i, part)
		}
		vec = append(vec, v)
	}
	return vec, nil
}
