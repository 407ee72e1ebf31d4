package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/manualkit/regent/config"
	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/symbolic"
)

// PostgresStore implements eligibility.ThresholdStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "regent",
		SSLMode:  "disable",
	}
}

// NewPostgresStore creates a new PostgreSQL-backed threshold store
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User,
		cfg.Password, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS thresholds (
		topic VARCHAR(255) NOT NULL,
		criterion VARCHAR(255) NOT NULL,
		value BIGINT NOT NULL,
		operator VARCHAR(4) NOT NULL,
		unit VARCHAR(16) NOT NULL,
		citation VARCHAR(255) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		source_date TIMESTAMP NULL,
		abs_tolerance BIGINT NOT NULL DEFAULT 0,
		pct_tolerance DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (topic, criterion, citation)
	);
	CREATE INDEX IF NOT EXISTS idx_thresholds_topic ON thresholds(topic);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Put stores or replaces a threshold record
func (s *PostgresStore) Put(ctx context.Context, t eligibility.Threshold) error {
	var sourceDate sql.NullTime
	if !t.SourceDate.IsZero() {
		sourceDate = sql.NullTime{Time: t.SourceDate, Valid: true}
	}

	query := `
	INSERT INTO thresholds (topic, criterion, value, operator, unit, citation,
		confidence, source_date, abs_tolerance, pct_tolerance)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (topic, criterion, citation) DO UPDATE SET
		value = EXCLUDED.value,
		operator = EXCLUDED.operator,
		unit = EXCLUDED.unit,
		confidence = EXCLUDED.confidence,
		source_date = EXCLUDED.source_date,
		abs_tolerance = EXCLUDED.abs_tolerance,
		pct_tolerance = EXCLUDED.pct_tolerance
	`
	_, err := s.db.ExecContext(ctx, query,
		t.Topic, t.Criterion, t.Value, string(t.Operator), string(t.Unit),
		t.Citation, t.Confidence, sourceDate, t.AbsTolerance, t.PctTolerance)
	if err != nil {
		return fmt.Errorf("failed to store threshold in PostgreSQL: %w", err)
	}
	return nil
}

// Thresholds returns all records for a topic
func (s *PostgresStore) Thresholds(ctx context.Context, topic string) ([]eligibility.Threshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic, criterion, value, operator, unit, citation,
			confidence, source_date, abs_tolerance, pct_tolerance
		 FROM thresholds
		 WHERE topic = $1
		 ORDER BY criterion`,
		topic)
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	out := make([]eligibility.Threshold, 0)
	for rows.Next() {
		var (
			t          eligibility.Threshold
			operator   string
			unit       string
			sourceDate sql.NullTime
		)
		err := rows.Scan(&t.Topic, &t.Criterion, &t.Value, &operator, &unit,
			&t.Citation, &t.Confidence, &sourceDate, &t.AbsTolerance, &t.PctTolerance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		op, ok := symbolic.ParseOp(operator)
		if !ok {
			return nil, fmt.Errorf("threshold %s/%s: bad operator %q", t.Topic, t.Criterion, operator)
		}
		t.Operator = op
		t.Unit = symbolic.Unit(unit)
		if sourceDate.Valid {
			t.SourceDate = sourceDate.Time
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thresholds: %w", err)
	}
	return out, nil
}

// Topics lists every topic with at least one record
func (s *PostgresStore) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT topic FROM thresholds ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		out = append(out, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}
	return out, nil
}

// Clear removes all records for a topic
func (s *PostgresStore) Clear(ctx context.Context, topic string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thresholds WHERE topic = $1`, topic); err != nil {
		return fmt.Errorf("failed to clear thresholds: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if the PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
