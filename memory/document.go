package memory

import (
	"context"

	"github.com/mnemon-dev/mnemon/chunk"
)

// AddDocumentResult reports where the chunks of a document landed.
type AddDocumentResult struct {
	DocumentID string      `json:"document_id"`
	Collection string      `json:"collection"`
	ChunkCount int         `json:"chunk_count"`
	Duplicates int         `json:"duplicates,omitempty"`
	Chunks     []AddResult `json:"chunks"`
}

// AddDocument stores a document too long for a single record. The content is
// split along paragraph and sentence boundaries and each chunk goes through
// the normal add path, so per-chunk deduplication still applies. Every chunk
// carries the document id derived from the full content, plus its position.
func (s *Service) AddDocument(ctx context.Context, params AddParams) (*AddDocumentResult, error) {
	if params.Collection == "" {
		return nil, Errorf(KindValidation, "collection name is required")
	}
	if params.Content == "" {
		return nil, Errorf(KindValidation, "content is required")
	}

	splitter := chunk.New(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	pieces := splitter.Split(params.Content)
	if len(pieces) == 0 {
		return nil, Errorf(KindValidation, "content is empty after splitting")
	}

	result := &AddDocumentResult{
		DocumentID: ContentID(params.Content),
		Collection: params.Collection,
		ChunkCount: len(pieces),
	}

	for i, piece := range pieces {
		metadata := make(map[string]any, len(params.Metadata)+3)
		for k, v := range params.Metadata {
			metadata[k] = v
		}
		metadata["document_id"] = result.DocumentID
		metadata["chunk_index"] = i
		metadata["chunk_count"] = len(pieces)

		res, err := s.Add(ctx, AddParams{
			Collection: params.Collection,
			Content:    piece,
			Metadata:   metadata,
			Tags:       params.Tags,
			Principal:  params.Principal,
		})
		if err != nil {
			return nil, err
		}
		if res.Duplicate {
			result.Duplicates++
		}
		result.Chunks = append(result.Chunks, *res)
	}
	return result, nil
}
