package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/prompts"
	"github.com/yshsolar/catalog-pipeline/internal/types"
	"github.com/yshsolar/catalog-pipeline/internal/vectorsink"
)

const (
	textPromptFile = "vision.json"
	textPromptKey  = "embedding-text-v1"

	// DefaultBatchSize is the number of records embedded and upserted together.
	DefaultBatchSize = 64
)

// pointNamespace scopes the v5 point ids derived from product ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://schemas.yshsolar.com.br/catalog/products"))

// VectorRecord is the deterministic text form of one product.
type VectorRecord struct {
	PointID   string
	ProductID string
	Text      string
	Payload   map[string]any
}

// PointID returns the stable vector point id of a product.
func PointID(productID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(productID)).String()
}

// BuildVectorRecords renders one record per valid product, ordered by product id.
func BuildVectorRecords(products []types.ConsolidatedProduct) ([]VectorRecord, error) {
	template, err := prompts.Get(textPromptFile, textPromptKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector text template: %w", err)
	}

	var records []VectorRecord
	for i := range products {
		p := &products[i]
		if p.Validation.Status != types.StatusValid {
			continue
		}
		specs, err := SpecsText(p.TechnicalSpecs)
		if err != nil {
			return nil, fmt.Errorf("failed to render specs of %s: %w", p.ID, err)
		}
		text := prompts.Format(template, map[string]string{
			"Title":       title(p),
			"Description": description(p),
			"Specs":       specs,
		})
		records = append(records, VectorRecord{
			PointID:   PointID(p.ID),
			ProductID: p.ID,
			Text:      strings.TrimSpace(text),
			Payload: map[string]any{
				"product_id":   p.ID,
				"category":     string(p.Category),
				"manufacturer": types.Str(p.Manufacturer),
				"model":        types.Str(p.Model),
			},
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ProductID < records[j].ProductID })
	return records, nil
}

// SpecsText renders the non-null technical specs as "key: value" lines in key order.
func SpecsText(specs types.TechnicalSpecs) (string, error) {
	data, err := json.Marshal(specs)
	if err != nil {
		return "", err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, fields[k]))
	}
	return strings.Join(lines, "\n"), nil
}

func title(p *types.ConsolidatedProduct) string {
	if t := types.Str(p.Title); t != "" {
		return t
	}
	return strings.TrimSpace(types.Str(p.Manufacturer) + " " + types.Str(p.Model))
}

func description(p *types.ConsolidatedProduct) string {
	if d := types.Str(p.DescriptionShort); d != "" {
		return d
	}
	return types.Str(p.DescriptionLong)
}

// ExportVectors embeds records in batches and upserts them into sink.
func ExportVectors(ctx context.Context, records []VectorRecord, embedder vectorsink.Embedder, sink vectorsink.Sink, batchSize int, logger *zap.Logger) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	exported := 0
	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		batch := records[start:min(start+batchSize, len(records))]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Text
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return exported, fmt.Errorf("failed to embed vector records: %w", err)
		}
		if len(vectors) != len(batch) {
			return exported, fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(batch))
		}

		points := make([]vectorsink.Point, len(batch))
		for i, r := range batch {
			points[i] = vectorsink.Point{ID: r.PointID, Vector: vectors[i], Payload: r.Payload}
		}
		if err := sink.Upsert(ctx, points); err != nil {
			return exported, fmt.Errorf("failed to upsert vectors: %w", err)
		}
		exported += len(points)
	}
	if logger != nil {
		logger.Info("exported vectors", zap.Int("points", exported))
	}
	return exported, nil
}
