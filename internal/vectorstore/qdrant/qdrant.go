package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

// Storage is a Qdrant collection reached over gRPC. The collection uses
// Euclidean distance; scores are squared on the way out so they match the
// in-memory store.
type Storage struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	apiKey      string
	timeout     time.Duration
	dimension   int
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Timeout    time.Duration
}

// NewStorage creates a client. No request is sent until Init or Search.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" || cfg.Collection == "" {
		return nil, errors.New("qdrant: host and collection are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Storage{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		apiKey:      cfg.APIKey,
		timeout:     timeout,
	}, nil
}

// Collection returns the collection name.
func (s *Storage) Collection() string { return s.collection }

// Init creates the collection for vectors of the given dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ctx, cancel := s.withAuth(ctx)
	defer cancel()
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dimension),
			Distance: pb.Distance_Euclid,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
	}
	s.dimension = dimension
	return nil
}

// SetDimension records the dimension of an existing collection.
func (s *Storage) SetDimension(d int) { s.dimension = d }

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: %d != %d", len(vectors[i]), s.dimension)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}}},
			Payload: map[string]*pb.Value{
				"source": {Kind: &pb.Value_StringValue{StringValue: c.Source}},
				"text":   {Kind: &pb.Value_StringValue{StringValue: c.Text}},
				"index":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
			},
		}
	}
	ctx, cancel := s.withAuth(ctx)
	defer cancel()
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	ctx, cancel := s.withAuth(ctx)
	defer cancel()
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		results[i] = toResult(pt)
	}
	return results, nil
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	ctx, cancel := s.withAuth(ctx)
	defer cancel()
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("qdrant delete collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.conn.Close()
}

func (s *Storage) withAuth(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func toResult(pt *pb.ScoredPoint) domain.SearchResult {
	payload := pt.GetPayload()
	d := float64(pt.GetScore())
	return domain.SearchResult{
		Chunk: domain.Chunk{
			ID:     pt.GetId().GetUuid(),
			Source: payload["source"].GetStringValue(),
			Text:   payload["text"].GetStringValue(),
			Index:  int(payload["index"].GetIntegerValue()),
		},
		Score: d * d,
	}
}

var _ vectorstore.Storage = (*Storage)(nil)
