// Package vectorsink exports product embeddings to an external vector store.
package vectorsink

import (
	"context"
	"fmt"

	"github.com/yshsolar/catalog-pipeline/internal/config"
)

// Point is one vector with its stable id and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Sink stores points. Upserting the same id twice replaces the earlier point.
type Sink interface {
	Upsert(ctx context.Context, points []Point) error
	Close() error
}

// Embedder turns text records into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// DimensionError reports a vector whose length does not match the configured dimension.
type DimensionError struct {
	ID   string
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector %s has dimension %d, want %d", e.ID, e.Got, e.Want)
}

// CheckDimensions fails on the first point whose vector length differs from dim.
func CheckDimensions(points []Point, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return &DimensionError{ID: p.ID, Want: dim, Got: len(p.Vector)}
		}
	}
	return nil
}

// New opens the sink named by cfg.Kind.
func New(ctx context.Context, cfg config.VectorSink, databaseURL string) (Sink, error) {
	switch cfg.Kind {
	case config.SinkQdrant, "":
		return NewQdrantSink(cfg.Endpoint, cfg.Collection, cfg.APIKey, cfg.EmbeddingDim)
	case config.SinkPgVector:
		dsn := cfg.Endpoint
		if dsn == "" || !isPostgresURL(dsn) {
			dsn = databaseURL
		}
		return NewPgVectorSink(ctx, dsn, cfg.Collection, cfg.EmbeddingDim)
	default:
		return nil, fmt.Errorf("unknown vector sink kind %q", cfg.Kind)
	}
}
