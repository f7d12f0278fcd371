package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Wildcard in a permission set grants access to any principal.
const Wildcard = "*"

// Permissions holds the three principal sets of a collection.
// Admin implies write, write implies read.
type Permissions struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
	Admin []string `json:"admin"`
}

// DefaultPermissions returns the permissions applied when a collection is
// created without explicit ones: world-readable, creator-writable.
func DefaultPermissions(createdBy string) Permissions {
	return Permissions{
		Read:  []string{Wildcard},
		Write: []string{createdBy},
		Admin: []string{createdBy},
	}
}

func grants(set []string, principal string) bool {
	for _, p := range set {
		if p == Wildcard || p == principal {
			return true
		}
	}
	return false
}

// CanAdmin reports whether principal is in the admin set.
func (p Permissions) CanAdmin(principal string) bool {
	return grants(p.Admin, principal)
}

// CanWrite reports whether principal may add or delete records.
func (p Permissions) CanWrite(principal string) bool {
	return grants(p.Write, principal) || p.CanAdmin(principal)
}

// CanRead reports whether principal may search or fetch records.
func (p Permissions) CanRead(principal string) bool {
	return grants(p.Read, principal) || p.CanWrite(principal)
}

// Collection is the metadata of one named bucket of memory records.
type Collection struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	Category    string      `json:"category,omitempty"`
	Project     string      `json:"project,omitempty"`
	Permissions Permissions `json:"permissions"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Point is one stored record: a content-derived id, its embedding, and the
// metadata payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchHit is one similarity search result.
type SearchHit struct {
	ID         string         `json:"id"`
	Score      float32        `json:"score"`
	Collection string         `json:"collection"`
	Payload    map[string]any `json:"payload"`
}

// CollectionInfo is the backend's view of a collection.
type CollectionInfo struct {
	PointCount uint64 `json:"point_count"`
	Status     string `json:"status"`
}

// Embedder converts text to vector embeddings. Implementations: mock
// (testing), ONNX (local), or any remote embedding API. Dimension is fixed
// per deployment.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// VectorStore is the storage backend interface. The core never assumes an
// in-process index; every call may be a remote service call and is wrapped
// by the retry subsystem.
type VectorStore interface {
	// EnsureCollection creates the backing collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// DropCollection removes the backing collection and all its points.
	DropCollection(ctx context.Context, name string) error

	// Upsert stores a point, replacing any existing point with the same id.
	Upsert(ctx context.Context, collection string, point Point) error

	// Search returns up to limit nearest neighbors with score >= minScore,
	// ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]SearchHit, error)

	// Get fetches a point by id. A missing id yields (nil, nil).
	Get(ctx context.Context, collection, id string) (*Point, error)

	// Delete removes a point by id.
	Delete(ctx context.Context, collection, id string) error

	// ListCollections returns all backing collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// CollectionInfo returns point count and status for one collection.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
}

// Sampler is an optional VectorStore capability: fetching a sample of stored
// points without a query vector. Stores that support it enable content
// analysis in collection statistics.
type Sampler interface {
	Sample(ctx context.Context, collection string, limit int) ([]Point, error)
}

// hashNamespace is the fixed UUIDv5 namespace for content ids. It must never
// change: ids derived from it identify records in existing deployments.
var hashNamespace = uuid.MustParse("12345678-1234-5678-1234-123456789abc")

// ContentID derives the deterministic record id for a piece of content.
// Identical content always maps to the same id, regardless of collection or
// caller, which makes repeated writes idempotent upserts.
func ContentID(content string) string {
	return uuid.NewSHA1(hashNamespace, []byte(content)).String()
}
