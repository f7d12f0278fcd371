package memory

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/mnemon-dev/mnemon/retry"
)

// ServiceConfig holds the record-level tunables.
type ServiceConfig struct {
	// SimilarityThreshold: a write whose nearest neighbor scores at or
	// above this is treated as a duplicate and upserts over the matched
	// record.
	SimilarityThreshold float32

	// NearMissThreshold: scores in [NearMissThreshold,
	// SimilarityThreshold) proceed normally but are logged for review.
	NearMissThreshold float32

	// DedupLogging toggles duplicate/near-miss diagnostics.
	DedupLogging bool

	// ChunkSize and ChunkOverlap control document splitting in AddDocument.
	// Zero values fall back to the chunk package defaults.
	ChunkSize    int
	ChunkOverlap int
}

// Service owns record operations within collections: add with deduplication,
// multi-collection search, point lookups and deletes. Every store and
// embedder call goes through the retrier.
type Service struct {
	store    VectorStore
	embedder Embedder
	registry *Registry
	retrier  *retry.Retrier
	cfg      ServiceConfig
}

// NewService wires a record service from its collaborators.
func NewService(store VectorStore, embedder Embedder, registry *Registry, retrier *retry.Retrier, cfg ServiceConfig) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		registry: registry,
		retrier:  retrier,
		cfg:      cfg,
	}
}

// Registry exposes the collection registry backing this service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// AddParams describes one record write.
type AddParams struct {
	Collection string
	Content    string
	Metadata   map[string]any
	Tags       []string
	Principal  string
}

// AddResult reports where a write landed.
type AddResult struct {
	ID         string `json:"memory_id"`
	Collection string `json:"collection"`

	// Duplicate is set when the write upserted over a semantically
	// equivalent existing record instead of creating a new one.
	Duplicate bool `json:"duplicate,omitempty"`

	// NearMiss is set when a close-but-distinct neighbor was found and
	// the write proceeded as a new record.
	NearMiss bool `json:"near_miss,omitempty"`
}

// Add stores content in a collection. The record id derives from the content
// hash, so identical content is an idempotent upsert. Before inserting, the
// nearest existing vector is probed: a score at or above the similarity
// threshold redirects the write onto the matched record's slot.
func (s *Service) Add(ctx context.Context, params AddParams) (*AddResult, error) {
	if params.Collection == "" {
		return nil, Errorf(KindValidation, "collection name is required")
	}
	if params.Content == "" {
		return nil, Errorf(KindValidation, "content is required")
	}

	col, err := s.registry.Get(params.Collection)
	if err != nil {
		return nil, err
	}
	if !col.Permissions.CanWrite(params.Principal) {
		return nil, Errorf(KindForbidden,
			"principal %q may not write to collection %q", params.Principal, params.Collection)
	}

	vector, err := s.embed(ctx, params.Content)
	if err != nil {
		return nil, err
	}

	result := &AddResult{ID: ContentID(params.Content), Collection: params.Collection}

	// Near-duplicate probe against the closest existing record.
	var nearest []SearchHit
	err = s.retrier.Do(ctx, "dedup probe", func(ctx context.Context) error {
		hits, err := s.store.Search(ctx, params.Collection, vector, 1, 0)
		if err != nil {
			return asCategory(retry.Storage, "dedup probe", err)
		}
		nearest = hits
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(nearest) > 0 {
		top := nearest[0]
		switch {
		case top.Score >= s.cfg.SimilarityThreshold:
			// Semantic duplicate: reuse the matched record's slot so the
			// write stays an upsert rather than piling up near-copies.
			result.Duplicate = true
			result.ID = top.ID
			if s.cfg.DedupLogging {
				log.Printf("[DEDUP] Duplicate in %q: score %.3f >= %.2f, upserting over %s",
					params.Collection, top.Score, s.cfg.SimilarityThreshold, top.ID)
			}
		case top.Score >= s.cfg.NearMissThreshold:
			result.NearMiss = true
			if s.cfg.DedupLogging {
				log.Printf("[DEDUP] Near-miss in %q: score %.3f in [%.2f, %.2f), storing as new record",
					params.Collection, top.Score, s.cfg.NearMissThreshold, s.cfg.SimilarityThreshold)
			}
		}
	}

	// Caller metadata first, reserved keys last so they can never be
	// overridden.
	payload := make(map[string]any, len(params.Metadata)+5)
	for k, v := range params.Metadata {
		payload[k] = v
	}
	payload["content"] = params.Content
	payload["collection"] = params.Collection
	payload["added_by"] = params.Principal
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	payload["tags"] = append([]string(nil), params.Tags...)

	point := Point{ID: result.ID, Vector: vector, Payload: payload}
	err = s.retrier.Do(ctx, "upsert", func(ctx context.Context) error {
		return asCategory(retry.Storage, "upsert", s.store.Upsert(ctx, params.Collection, point))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SearchParams describes a similarity search.
type SearchParams struct {
	Query string

	// Collections to search. Empty means every collection the principal
	// may read.
	Collections []string

	Limit     int
	MinScore  float32
	Principal string
}

// CollectionResult is the per-collection outcome of a search: either hits or
// the reason the collection was skipped. Skips never abort the overall
// search.
type CollectionResult struct {
	Collection string
	Hits       []SearchHit
	Err        error
}

// Skipped reports whether this collection contributed no results because of
// a failure.
func (c CollectionResult) Skipped() bool {
	return c.Err != nil
}

// SearchResult is the merged outcome across collections.
type SearchResult struct {
	Hits          []SearchHit
	PerCollection []CollectionResult
}

// SearchedCollections returns the names of all collections that were
// attempted, in order.
func (r *SearchResult) SearchedCollections() []string {
	names := make([]string, len(r.PerCollection))
	for i, c := range r.PerCollection {
		names[i] = c.Collection
	}
	return names
}

// Search embeds the query and fans out across collections, merging
// per-collection results into one list ranked by descending score. A failure
// in one collection skips that collection only.
func (s *Service) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Query == "" {
		return nil, Errorf(KindValidation, "query is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	collections := params.Collections
	if len(collections) == 0 {
		collections = s.registry.Readable(params.Principal)
	}

	vector, err := s.embed(ctx, params.Query)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{}
	for _, name := range collections {
		cr := CollectionResult{Collection: name}

		col, err := s.registry.Get(name)
		switch {
		case err != nil:
			cr.Err = err
		case !col.Permissions.CanRead(params.Principal):
			cr.Err = Errorf(KindForbidden, "principal %q may not read collection %q", params.Principal, name)
		default:
			cr.Err = s.retrier.Do(ctx, "search "+name, func(ctx context.Context) error {
				hits, err := s.store.Search(ctx, name, vector, limit, params.MinScore)
				if err != nil {
					return asCategory(retry.Storage, "search", err)
				}
				cr.Hits = hits
				return nil
			})
		}

		if cr.Skipped() {
			log.Printf("[SEARCH] Skipping collection %q: %v", name, cr.Err)
		} else {
			for i := range cr.Hits {
				cr.Hits[i].Collection = name
			}
			result.Hits = append(result.Hits, cr.Hits...)
		}
		result.PerCollection = append(result.PerCollection, cr)
	}

	sort.SliceStable(result.Hits, func(i, j int) bool {
		return result.Hits[i].Score > result.Hits[j].Score
	})
	if len(result.Hits) > limit {
		result.Hits = result.Hits[:limit]
	}
	return result, nil
}

// Get fetches one record by id. A missing id is a NotFound domain error, not
// a transport failure.
func (s *Service) Get(ctx context.Context, id, collection string) (*Point, error) {
	if !s.registry.Exists(collection) {
		return nil, Errorf(KindNotFound, "collection %q not found", collection)
	}

	var point *Point
	err := s.retrier.Do(ctx, "get", func(ctx context.Context) error {
		p, err := s.store.Get(ctx, collection, id)
		if err != nil {
			return asCategory(retry.Storage, "get", err)
		}
		point = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, Errorf(KindNotFound, "memory %q not found in collection %q", id, collection)
	}
	return point, nil
}

// Delete removes one record. The principal needs write permission on the
// collection.
func (s *Service) Delete(ctx context.Context, id, collection, principal string) error {
	col, err := s.registry.Get(collection)
	if err != nil {
		return err
	}
	if !col.Permissions.CanWrite(principal) {
		return Errorf(KindForbidden, "principal %q may not delete from collection %q", principal, collection)
	}

	return s.retrier.Do(ctx, "delete", func(ctx context.Context) error {
		return asCategory(retry.Storage, "delete", s.store.Delete(ctx, collection, id))
	})
}

// CollectionStats aggregates backend and content statistics for one
// collection.
type CollectionStats struct {
	Collection   string         `json:"collection"`
	PointCount   uint64         `json:"total_memories"`
	Status       string         `json:"status"`
	TagCounts    map[string]int `json:"top_tags,omitempty"`
	Contributors int            `json:"total_contributors,omitempty"`
	AvgSize      int            `json:"avg_content_size,omitempty"`
	Metadata     *Collection    `json:"metadata"`
}

// Stats returns statistics for a collection. Content analysis (tags,
// contributors, sizes) is computed over a sample when the store supports
// sampling; otherwise only backend counts are reported.
func (s *Service) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	col, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err = s.retrier.Do(ctx, "collection info", func(ctx context.Context) error {
		ci, err := s.store.CollectionInfo(ctx, collection)
		if err != nil {
			return asCategory(retry.Storage, "collection info", err)
		}
		info = ci
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{
		Collection: collection,
		PointCount: info.PointCount,
		Status:     info.Status,
		Metadata:   col,
	}

	sampler, ok := s.store.(Sampler)
	if !ok {
		return stats, nil
	}

	points, err := sampler.Sample(ctx, collection, 100)
	if err != nil {
		// Content analysis is best-effort; counts alone are still useful.
		log.Printf("[STATS] Sample of %q failed: %v", collection, err)
		return stats, nil
	}

	tagCounts := make(map[string]int)
	contributors := make(map[string]struct{})
	totalSize := 0
	for _, p := range points {
		for _, tag := range payloadTags(p.Payload) {
			tagCounts[tag]++
		}
		if by, ok := p.Payload["added_by"].(string); ok {
			contributors[by] = struct{}{}
		}
		if content, ok := p.Payload["content"].(string); ok {
			totalSize += len(content)
		}
	}
	if len(points) > 0 {
		stats.AvgSize = totalSize / len(points)
	}
	stats.TagCounts = tagCounts
	stats.Contributors = len(contributors)
	return stats, nil
}

// embed runs the embedder under the retry policy, classifying failures as
// embedding errors unless the adapter already categorized them.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := s.retrier.Do(ctx, "embed", func(ctx context.Context) error {
		v, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return asCategory(retry.Embedding, "embed", err)
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// asCategory tags err with a default category, keeping any classification an
// adapter already applied.
func asCategory(cat retry.Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *retry.Error
	if errors.As(err, &re) {
		return err
	}
	return retry.Wrap(cat, op, err)
}

// payloadTags extracts the tags list from a payload regardless of whether it
// round-tripped through JSON (which turns []string into []any).
func payloadTags(payload map[string]any) []string {
	switch v := payload["tags"].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}
