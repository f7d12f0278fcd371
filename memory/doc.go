// Package memory implements the collection and record model of the server.
//
// Content is organized into named, access-controlled collections backed by a
// vector similarity index. Records are content-addressed: the id of a record
// is a deterministic UUID derived from its content, so writing identical
// content twice is an idempotent upsert rather than a duplicate insert.
// Semantic near-duplicates are additionally detected by similarity against
// the nearest existing vector before every write.
//
// Architecture:
//   - VectorStore: storage backend interface (chromem for embedded use,
//     Qdrant for production)
//   - Embedder: text-to-vector conversion (ONNX locally, mock for tests)
//   - Registry: collection metadata, permissions, lifecycle
//   - Service: record operations (add, search, get, delete) with
//     deduplication and partial-failure tolerant multi-collection search
//
// The three historical memory types (global, learned, agent) are mapped onto
// collections by the legacy compatibility surface in legacy.go.
package memory
