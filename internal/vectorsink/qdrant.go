package vectorsink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// DefaultQdrantPort is Qdrant's gRPC port.
const DefaultQdrantPort = 6334

// QdrantSink upserts points through the Qdrant gRPC API. The collection is created with
// cosine distance on first use when it does not exist.
type QdrantSink struct {
	client     *qdrant.Client
	collection string
	dim        int

	once      sync.Once
	ensureErr error
}

// NewQdrantSink returns a sink for collection at endpoint, given as host:port or as a URL whose
// https scheme turns TLS on. The connection is established lazily.
func NewQdrantSink(endpoint, collection, apiKey string, dim int) (*QdrantSink, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("qdrant endpoint is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	cfg, err := qdrantConfig(endpoint)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = apiKey
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantSink{client: client, collection: collection, dim: dim}, nil
}

// qdrantConfig parses endpoint into a client configuration.
func qdrantConfig(endpoint string) (*qdrant.Config, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		u, err = url.Parse("grpc://" + endpoint)
	}
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid qdrant endpoint %q", endpoint)
	}

	cfg := &qdrant.Config{Host: u.Hostname(), Port: DefaultQdrantPort, UseTLS: u.Scheme == "https"}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid qdrant port in %q", endpoint)
		}
		cfg.Port = port
	}
	return cfg, nil
}

// Upsert writes points and waits for Qdrant to apply them.
func (s *QdrantSink) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := CheckDimensions(points, s.dim); err != nil {
		return err
	}
	s.once.Do(func() { s.ensureErr = s.ensureCollection(ctx) })
	if s.ensureErr != nil {
		return s.ensureErr
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := payloadValues(p.Payload)
		if err != nil {
			return fmt.Errorf("invalid payload of %s: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantSink) Close() error {
	return s.client.Close()
}

func (s *QdrantSink) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to look up collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// payloadValues converts a payload to Qdrant values. The JSON round trip reduces typed
// slices and structs to the maps, slices and scalars the value constructors accept.
func payloadValues(payload map[string]any) (map[string]*qdrant.Value, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return qdrant.TryValueMap(plain)
}

