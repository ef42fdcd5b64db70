package vectorsink

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/llm"
)

// fakeQdrant records calls and serves a collection that exists once created.
type fakeQdrant struct {
	mu         sync.Mutex
	exists     bool
	calls      []string
	created    *qdrant.CreateCollection
	upserts    []*qdrant.UpsertPoints
	apiKey     string
	failUpsert bool
}

func (f *fakeQdrant) record(ctx context.Context, call string) {
	f.calls = append(f.calls, call)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if keys := md.Get("api-key"); len(keys) > 0 {
			f.apiKey = keys[0]
		}
	}
}

type fakeCollections struct {
	qdrant.UnimplementedCollectionsServer
	*fakeQdrant
}

func (f fakeCollections) CollectionExists(ctx context.Context, req *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "exists "+req.GetCollectionName())
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: f.exists}}, nil
}

func (f fakeCollections) Create(ctx context.Context, req *qdrant.CreateCollection) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "create "+req.GetCollectionName())
	f.created = req
	f.exists = true
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	qdrant.UnimplementedPointsServer
	*fakeQdrant
}

func (f fakePoints) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "upsert "+req.GetCollectionName())
	if f.failUpsert {
		return nil, status.Error(codes.InvalidArgument, "wrong vector dimension")
	}
	f.upserts = append(f.upserts, req)
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

type fakeHealth struct {
	qdrant.UnimplementedQdrantServer
}

func (fakeHealth) HealthCheck(context.Context, *qdrant.HealthCheckRequest) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{Title: "qdrant", Version: "1.14.0"}, nil
}

// startQdrant serves fake on a local gRPC listener and returns its address.
func startQdrant(t *testing.T, fake *fakeQdrant) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	qdrant.RegisterCollectionsServer(srv, fakeCollections{fakeQdrant: fake})
	qdrant.RegisterPointsServer(srv, fakePoints{fakeQdrant: fake})
	qdrant.RegisterQdrantServer(srv, fakeHealth{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func points(dim int, ids ...string) []Point {
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		v := make([]float32, dim)
		for i := range v {
			v[i] = float32(i) / 10
		}
		out = append(out, Point{ID: id, Vector: v, Payload: map[string]any{"product_id": id}})
	}
	return out
}

func TestQdrantSink_CreatesCollectionOnce(t *testing.T) {
	fake := &fakeQdrant{}
	addr := startQdrant(t, fake)

	sink, err := NewQdrantSink(addr, "products", "secret", 3)
	require.NoError(t, err)

	ids := []string{uuid.NewString(), uuid.NewString()}
	require.NoError(t, sink.Upsert(context.Background(), points(3, ids...)))
	require.NoError(t, sink.Upsert(context.Background(), points(3, ids[0])))
	require.NoError(t, sink.Close())

	assert.Equal(t, []string{
		"exists products",
		"create products",
		"upsert products",
		"upsert products",
	}, fake.calls)
	assert.Equal(t, "secret", fake.apiKey)
	require.NotNil(t, fake.created)
	params := fake.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(3), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())

	require.Len(t, fake.upserts, 2)
	first := fake.upserts[0]
	assert.True(t, first.GetWait())
	require.Len(t, first.GetPoints(), 2)
	assert.Equal(t, ids[0], first.GetPoints()[0].GetId().GetUuid())
	assert.Equal(t, ids[0], first.GetPoints()[0].GetPayload()["product_id"].GetStringValue())
}

func TestQdrantSink_ExistingCollection(t *testing.T) {
	fake := &fakeQdrant{exists: true}
	addr := startQdrant(t, fake)

	sink, err := NewQdrantSink("http://"+addr, "products", "", 2)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	require.NoError(t, sink.Upsert(context.Background(), points(2, uuid.NewString())))
	assert.Equal(t, []string{"exists products", "upsert products"}, fake.calls)
	assert.Empty(t, fake.apiKey)
}

func TestQdrantSink_Errors(t *testing.T) {
	t.Run("dimension mismatch sends nothing", func(t *testing.T) {
		fake := &fakeQdrant{exists: true}
		addr := startQdrant(t, fake)

		sink, err := NewQdrantSink(addr, "products", "", 4)
		require.NoError(t, err)
		defer func() { _ = sink.Close() }()
		err = sink.Upsert(context.Background(), points(3, "a"))
		var dimErr *DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 4, dimErr.Want)
		assert.Equal(t, 3, dimErr.Got)
		assert.Empty(t, fake.calls)
	})

	t.Run("rejected upsert", func(t *testing.T) {
		fake := &fakeQdrant{exists: true, failUpsert: true}
		addr := startQdrant(t, fake)

		sink, err := NewQdrantSink(addr, "products", "", 2)
		require.NoError(t, err)
		defer func() { _ = sink.Close() }()
		err = sink.Upsert(context.Background(), points(2, uuid.NewString()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert 1 points")
		assert.Contains(t, err.Error(), "wrong vector dimension")
	})

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		sink, err := NewQdrantSink("127.0.0.1:1", "products", "", 2)
		require.NoError(t, err)
		defer func() { _ = sink.Close() }()
		assert.NoError(t, sink.Upsert(context.Background(), nil))
	})

	t.Run("constructor validation", func(t *testing.T) {
		_, err := NewQdrantSink("", "products", "", 2)
		assert.Error(t, err)
		_, err = NewQdrantSink("localhost:6334", "", "", 2)
		assert.Error(t, err)
		_, err = NewQdrantSink("localhost:6334", "products", "", 0)
		assert.Error(t, err)
		_, err = NewQdrantSink("localhost:99999", "products", "", 2)
		assert.Error(t, err)
	})
}

func TestQdrantConfig(t *testing.T) {
	tests := []struct {
		endpoint string
		host     string
		port     int
		tls      bool
	}{
		{"localhost:6334", "localhost", 6334, false},
		{"localhost", "localhost", DefaultQdrantPort, false},
		{"10.0.0.5:7000", "10.0.0.5", 7000, false},
		{"http://qdrant.internal:6334", "qdrant.internal", 6334, false},
		{"https://xyz.cloud.qdrant.io", "xyz.cloud.qdrant.io", DefaultQdrantPort, true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg, err := qdrantConfig(tt.endpoint)
			require.NoError(t, err)
			assert.Equal(t, tt.host, cfg.Host)
			assert.Equal(t, tt.port, cfg.Port)
			assert.Equal(t, tt.tls, cfg.UseTLS)
		})
	}
}

func TestPayloadValues(t *testing.T) {
	values, err := payloadValues(map[string]any{
		"product_id": "p1",
		"price":      12.5,
		"tags":       []string{"mppt", "hibrido"},
		"specs":      map[string]any{"power_kw": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", values["product_id"].GetStringValue())
	assert.Equal(t, 12.5, values["price"].GetDoubleValue())
	require.Len(t, values["tags"].GetListValue().GetValues(), 2)
	assert.Equal(t, "hibrido", values["tags"].GetListValue().GetValues()[1].GetStringValue())
	assert.Equal(t, 5.0, values["specs"].GetStructValue().GetFields()["power_kw"].GetDoubleValue())

	empty, err := payloadValues(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNew(t *testing.T) {
	sink, err := New(context.Background(), config.VectorSink{Kind: config.SinkQdrant, Endpoint: "localhost:6334", Collection: "products", EmbeddingDim: 8}, "")
	require.NoError(t, err)
	assert.IsType(t, &QdrantSink{}, sink)
	require.NoError(t, sink.Close())

	_, err = New(context.Background(), config.VectorSink{Kind: "milvus"}, "")
	assert.Error(t, err)

	_, err = New(context.Background(), config.VectorSink{Kind: config.SinkPgVector, Collection: "products", EmbeddingDim: 8}, "")
	assert.Error(t, err)
}

func TestPgVectorParameter(t *testing.T) {
	v, err := pgvector.NewVector([]float32{0.5, -1, 2.25}).Value()
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-1,2.25]", v)
}

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls     int
}

func (m *MockLLMClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return "{}", nil
}

func (m *MockLLMClient) GenerateJSONWithImage(context.Context, string, []byte, string, llm.ModelTier) (string, error) {
	return "{}", nil
}

func (m *MockLLMClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	return m.EmbedFunc(ctx, texts)
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func TestGeminiEmbedder(t *testing.T) {
	constant := func(dim int) func(context.Context, []string) ([][]float32, error) {
		return func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = make([]float32, dim)
			}
			return out, nil
		}
	}

	t.Run("batches large inputs", func(t *testing.T) {
		client := &MockLLMClient{EmbedFunc: constant(4)}
		e := NewGeminiEmbedder(client, 4)
		texts := make([]string, 250)
		vectors, err := e.Embed(context.Background(), texts)
		require.NoError(t, err)
		assert.Len(t, vectors, 250)
		assert.Equal(t, 3, client.calls)
		assert.Equal(t, 4, e.Dim())
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		e := NewGeminiEmbedder(&MockLLMClient{EmbedFunc: constant(3)}, 4)
		_, err := e.Embed(context.Background(), []string{"a"})
		var dimErr *DimensionError
		assert.ErrorAs(t, err, &dimErr)
	})

	t.Run("short answer", func(t *testing.T) {
		client := &MockLLMClient{EmbedFunc: func(context.Context, []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		}}
		_, err := NewGeminiEmbedder(client, 1).Embed(context.Background(), []string{"a", "b"})
		assert.Error(t, err)
	})

	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("quota")
		client := &MockLLMClient{EmbedFunc: func(context.Context, []string) ([][]float32, error) { return nil, boom }}
		_, err := NewGeminiEmbedder(client, 1).Embed(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPgVectorSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := NewPgVectorSink(ctx, dbURL, "test-"+uuid.NewString(), 3)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
	}
	defer func() { _ = sink.Close() }()

	id := uuid.NewString()
	require.NoError(t, sink.Upsert(ctx, points(3, id)))
	require.NoError(t, sink.Upsert(ctx, points(3, id)))

	var n int
	require.NoError(t, sink.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_vectors WHERE collection = $1`, sink.collection).Scan(&n))
	assert.Equal(t, 1, n)
	_, err = sink.pool.Exec(ctx, `DELETE FROM catalog_vectors WHERE collection = $1`, sink.collection)
	require.NoError(t, err)
}
