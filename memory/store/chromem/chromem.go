// Package chromem adapts chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database; this backend is used
// for tests and offline development, with Qdrant serving production.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemon-dev/mnemon/memory"
)

// Store wraps a chromem DB. chromem has no point lookup by id, so the store
// keeps a sidecar index of payloads; that index also backs Sample.
type Store struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	points      map[string]map[string]memory.Point
}

// New creates an in-memory chromem store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		points:      make(map[string]map[string]memory.Point),
	}, nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist in store", name)
	}
	return col, nil
}

// EnsureCollection creates the backing collection if missing. The dimension
// is ignored: chromem accepts whatever vector length documents carry.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok {
		return nil
	}

	col, err := s.db.CreateCollection(
		name,
		nil, // No custom embedding func (we provide embeddings)
		nil, // No custom distance func (use default cosine)
	)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	s.collections[name] = col
	s.points[name] = make(map[string]memory.Point)
	return nil
}

// DropCollection removes the collection and all its points.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, name)
	delete(s.points, name)
	return nil
}

// Upsert stores a point, replacing any existing document with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, point memory.Point) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(point.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// AddDocument does not overwrite, so clear the slot first. Deleting a
	// missing id is a no-op.
	_ = col.Delete(ctx, nil, nil, point.ID)

	doc := chromem.Document{
		ID:        point.ID,
		Content:   string(payloadJSON),
		Embedding: point.Vector,
		Metadata:  flatMetadata(point.Payload),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.points[collection][point.ID] = clonePoint(point)
	s.mu.Unlock()
	return nil
}

// Search returns up to limit nearest neighbors scoring at least minScore.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]memory.SearchHit, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the document count.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	var hits []memory.SearchHit
	for i, result := range results {
		if result.Similarity < minScore {
			continue
		}
		payload, err := parsePayload(result.Content)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		hits = append(hits, memory.SearchHit{
			ID:         result.ID,
			Score:      result.Similarity,
			Collection: collection,
			Payload:    payload,
		})
	}
	return hits, nil
}

// Get fetches a point by id. A missing id yields (nil, nil).
func (s *Store) Get(ctx context.Context, collection, id string) (*memory.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.points[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist in store", collection)
	}
	point, ok := idx[id]
	if !ok {
		return nil, nil
	}
	cp := clonePoint(point)
	return &cp, nil
}

// Delete removes a point by id. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.mu.Lock()
	delete(s.points[collection], id)
	s.mu.Unlock()
	return nil
}

// ListCollections returns all backing collection names.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CollectionInfo reports the document count. An embedded store is always
// green.
func (s *Store) CollectionInfo(ctx context.Context, name string) (*memory.CollectionInfo, error) {
	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return &memory.CollectionInfo{
		PointCount: uint64(col.Count()),
		Status:     "green",
	}, nil
}

// Sample returns up to limit stored points, ordered by id.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]memory.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.points[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist in store", collection)
	}

	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	points := make([]memory.Point, 0, len(ids))
	for _, id := range ids {
		points = append(points, clonePoint(idx[id]))
	}
	return points, nil
}

// flatMetadata lowers string payload fields into chromem document metadata
// so they stay filterable.
func flatMetadata(payload map[string]any) map[string]string {
	md := make(map[string]string)
	for k, v := range payload {
		if str, ok := v.(string); ok {
			md[k] = str
		}
	}
	return md
}

func parsePayload(content string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

func clonePoint(p memory.Point) memory.Point {
	cp := memory.Point{
		ID:      p.ID,
		Vector:  append([]float32(nil), p.Vector...),
		Payload: make(map[string]any, len(p.Payload)),
	}
	for k, v := range p.Payload {
		cp.Payload[k] = v
	}
	return cp
}
