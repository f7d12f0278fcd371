// Package cached wraps an Embedder with a ristretto read-through cache.
// Deduplication embeds every add twice over a record's life (once to probe,
// once per retry), so caching by content id avoids recomputing vectors for
// text the server has already seen.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/mnemon-dev/mnemon/memory"
)

// Embedder caches embeddings keyed by content id.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing and storing it on a
// miss. Cached vectors are shared, so callers must not mutate the result.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := memory.ContentID(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
