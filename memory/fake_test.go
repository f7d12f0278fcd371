package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/mnemon-dev/mnemon/memory/embedder/mock"
	"github.com/mnemon-dev/mnemon/retry"
)

// fakeStore is an in-memory VectorStore with real cosine search. Tests can
// script Search results per collection or inject failures.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Point

	scripted  map[string][]SearchHit
	searchErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]map[string]Point),
		scripted:    make(map[string][]SearchHit),
		searchErr:   make(map[string]error),
	}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = make(map[string]Point)
	}
	return nil
}

func (f *fakeStore) DropCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, point Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	col[point.ID] = point
	return nil
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.searchErr[collection]; ok {
		return nil, err
	}
	if hits, ok := f.scripted[collection]; ok {
		return hits, nil
	}

	col, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", collection)
	}

	var hits []SearchHit
	for _, p := range col {
		score := dot(vector, p.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, SearchHit{ID: p.ID, Score: score, Collection: collection, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeStore) Get(ctx context.Context, collection, id string) (*Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", collection)
	}
	p, ok := col[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	delete(col, id)
	return nil
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", name)
	}
	return &CollectionInfo{PointCount: uint64(len(col)), Status: "green"}, nil
}

func (f *fakeStore) Sample(ctx context.Context, collection string, limit int) ([]Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", collection)
	}
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	points := make([]Point, 0, len(ids))
	for _, id := range ids {
		points = append(points, col[id])
	}
	return points, nil
}

// dot is cosine similarity for the unit vectors the mock embedder produces.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func testConfig() ServiceConfig {
	return ServiceConfig{
		SimilarityThreshold: 0.85,
		NearMissThreshold:   0.80,
	}
}

// newTestService wires a service over the fake store with no retry delays.
func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	emb := mock.NewWithDimensions(64)
	registry := NewRegistry(store, emb.Dimensions())
	retrier := retry.New(retry.Policy{Attempts: 1}, retry.NewStats())
	return NewService(store, emb, registry, retrier, cfg), store
}

func mustCreate(t *testing.T, svc *Service, spec CollectionSpec) *Collection {
	t.Helper()
	col, err := svc.Registry().Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("create collection %q: %v", spec.Name, err)
	}
	return col
}
