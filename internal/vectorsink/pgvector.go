package vectorsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorSink stores points in the catalog_vectors table of a PostgreSQL database with the
// pgvector extension. One table holds every collection.
type PgVectorSink struct {
	pool       *pgxpool.Pool
	collection string
	dim        int
}

// NewPgVectorSink connects and creates the extension and table when missing.
func NewPgVectorSink(ctx context.Context, databaseURL, collection string, dim int) (*PgVectorSink, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for the pgvector sink")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PgVectorSink{pool: pool, collection: collection, dim: dim}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorSink) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS catalog_vectors (
			collection TEXT NOT NULL,
			id UUID NOT NULL,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`, s.dim),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare catalog_vectors: %w", err)
		}
	}
	return nil
}

// Upsert writes all points in one batch.
func (s *PgVectorSink) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := CheckDimensions(points, s.dim); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload of %s: %w", p.ID, err)
		}
		batch.Queue(
			`INSERT INTO catalog_vectors (collection, id, embedding, payload)
			 VALUES ($1, $2, $3::vector, $4)
			 ON CONFLICT (collection, id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload, updated_at = NOW()`,
			s.collection, p.ID, pgvector.NewVector(p.Vector), payload,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for _, p := range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", p.ID, err)
		}
	}
	return nil
}

// Close closes the connection pool
func (s *PgVectorSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}
