package vectorsink

import (
	"context"
	"fmt"

	"github.com/yshsolar/catalog-pipeline/internal/llm"
)

// maxBatch is the largest batch the embedding endpoint accepts.
const maxBatch = 100

// GeminiEmbedder embeds text through the LLM client.
type GeminiEmbedder struct {
	client llm.Client
	dim    int
}

// NewGeminiEmbedder returns an embedder that expects vectors of length dim.
func NewGeminiEmbedder(client llm.Client, dim int) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, dim: dim}
}

// Dim returns the expected vector length.
func (e *GeminiEmbedder) Dim() int {
	return e.dim
}

// Embed returns one vector per text, in order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		vectors, err := e.client.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed texts %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), end-start)
		}
		for i, v := range vectors {
			if e.dim > 0 && len(v) != e.dim {
				return nil, &DimensionError{ID: fmt.Sprintf("#%d", start+i), Want: e.dim, Got: len(v)}
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}
