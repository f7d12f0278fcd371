// Package qdrant adapts the Qdrant gRPC client to the memory.VectorStore
// interface. Qdrant is the production backend; every call here crosses the
// network, so failures are classified for the retry subsystem.
package qdrant

import (
	"context"
	"fmt"
	"log"
	"strings"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mnemon-dev/mnemon/memory"
	"github.com/mnemon-dev/mnemon/retry"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Store is a VectorStore backed by a remote Qdrant instance.
type Store struct {
	client *qdrant.Client
}

// New connects to Qdrant. The client dials lazily; connection failures
// surface on the first call.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, retry.Wrap(retry.Connectivity, "qdrant connect", err)
	}
	log.Printf("[QDRANT] Client configured for %s:%d", cfg.Host, cfg.Port)
	return &Store{client: client}, nil
}

// Close tears down the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// classify wraps a Qdrant failure with its retry category. Transport-level
// failures are connectivity; everything else is a storage-side error.
func classify(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return retry.Wrap(retry.Connectivity, op, err)
		}
	}
	return retry.Wrap(retry.Storage, op, err)
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return classify("collection exists", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return classify("create collection", err)
	}
	log.Printf("[QDRANT] Created collection %q (dim=%d)", name, dimension)
	return nil
}

// DropCollection removes the collection and all its points.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return classify("delete collection", err)
	}
	return nil
}

// Upsert stores a point, replacing any existing point with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, point memory.Point) error {
	payload, err := qdrant.TryValueMap(point.Payload)
	if err != nil {
		return retry.Wrap(retry.Validation, "encode payload", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: payload,
		}},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return classify("upsert", err)
	}
	return nil
}

// Search returns up to limit nearest neighbors with score >= minScore.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]memory.SearchHit, error) {
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(minScore)
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, classify("query", err)
	}

	hits := make([]memory.SearchHit, 0, len(points))
	for _, pt := range points {
		hits = append(hits, memory.SearchHit{
			ID:         pt.GetId().GetUuid(),
			Score:      pt.GetScore(),
			Collection: collection,
			Payload:    decodePayload(pt.GetPayload()),
		})
	}
	return hits, nil
}

// Get fetches a point by id. A missing id yields (nil, nil).
func (s *Store) Get(ctx context.Context, collection, id string) (*memory.Point, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, classify("get", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	pt := points[0]
	return &memory.Point{
		ID:      pt.GetId().GetUuid(),
		Vector:  pt.GetVectors().GetVector().GetData(),
		Payload: decodePayload(pt.GetPayload()),
	}, nil
}

// Delete removes a point by id. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// ListCollections returns all collection names on the server.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, classify("list collections", err)
	}
	return names, nil
}

// CollectionInfo returns the point count and cluster status of a collection.
func (s *Store) CollectionInfo(ctx context.Context, name string) (*memory.CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, classify("collection info", err)
	}

	var count uint64
	if info.PointsCount != nil {
		count = *info.PointsCount
	}
	return &memory.CollectionInfo{
		PointCount: count,
		Status:     strings.ToLower(info.GetStatus().String()),
	}, nil
}

// Sample scrolls up to limit points without a query vector, enabling content
// analysis in collection statistics.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]memory.Point, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("scroll", err)
	}

	out := make([]memory.Point, 0, len(points))
	for _, pt := range points {
		out = append(out, memory.Point{
			ID:      pt.GetId().GetUuid(),
			Payload: decodePayload(pt.GetPayload()),
		})
	}
	return out, nil
}

// decodePayload lowers the protobuf payload into plain Go values.
func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, decodeValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return decodePayload(kind.StructValue.GetFields())
	default:
		return fmt.Sprintf("%v", v)
	}
}
