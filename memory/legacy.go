package memory

import (
	"context"
	"log"
	"strings"
)

// Collection names behind the three historical fixed memory types.
const (
	GlobalCollection       = "global_memory"
	LearnedCollection      = "learned_memory"
	AgentCollectionPrefix  = "agent_specific_memory_"
	DefaultAgentCollection = "agent_specific_memory_default"
)

type legacyKind int

const (
	legacyGlobal legacyKind = iota
	legacyLearned
	legacyAgent
)

// LegacyType is the closed variant of historical memory types. It is
// resolved into a concrete collection name exactly once, at the boundary,
// instead of string-matching type names throughout the handlers.
type LegacyType struct {
	kind    legacyKind
	agentID string
}

func LegacyGlobal() LegacyType { return LegacyType{kind: legacyGlobal} }
func LegacyLearned() LegacyType { return LegacyType{kind: legacyLearned} }
func LegacyAgent(agentID string) LegacyType {
	return LegacyType{kind: legacyAgent, agentID: agentID}
}

// String returns the historical type name attached to results as
// memory_type.
func (t LegacyType) String() string {
	switch t.kind {
	case legacyGlobal:
		return "global"
	case legacyLearned:
		return "learned"
	default:
		return "agent"
	}
}

// resolveLegacy maps a legacy type to a concrete collection name. Agent
// routing is a compatibility contract: exact per-agent collection, else the
// first existing collection with the agent prefix, else the default agent
// collection.
func (s *Service) resolveLegacy(t LegacyType) string {
	switch t.kind {
	case legacyGlobal:
		return GlobalCollection
	case legacyLearned:
		return LearnedCollection
	default:
		agentID := t.agentID
		if agentID == "" {
			agentID = "default"
		}
		want := AgentCollectionPrefix + agentID
		if s.registry.Exists(want) {
			return want
		}
		if existing := s.registry.NamesWithPrefix(AgentCollectionPrefix); len(existing) > 0 {
			log.Printf("[LEGACY] Agent collection %q missing, falling back to %q", want, existing[0])
			return existing[0]
		}
		return DefaultAgentCollection
	}
}

// ensureLegacyCollection creates a legacy collection on first use. Legacy
// callers predate explicit collection management, so these are world-
// writable.
func (s *Service) ensureLegacyCollection(ctx context.Context, name, principal string) error {
	if s.registry.Exists(name) {
		return nil
	}
	perms := Permissions{
		Read:  []string{Wildcard},
		Write: []string{Wildcard},
		Admin: []string{principal},
	}
	_, err := s.registry.Create(ctx, CollectionSpec{
		Name:        name,
		Description: "Auto-created legacy memory collection",
		Tags:        []string{"legacy"},
		Permissions: &perms,
		CreatedBy:   principal,
	})
	if err != nil && !IsAlreadyExists(err) {
		return err
	}
	return nil
}

// LegacyAddResult is the fixed response shape old callers expect.
type LegacyAddResult struct {
	ContentHash string `json:"content_hash"`
	Collection  string `json:"collection"`
	MemoryType  string `json:"memory_type"`
	Message     string `json:"message"`
}

// AddToGlobalMemory stores shared knowledge under the legacy global type.
func (s *Service) AddToGlobalMemory(ctx context.Context, content, category string, importance float64, principal string) (*LegacyAddResult, error) {
	if category == "" {
		category = "general"
	}
	t := LegacyGlobal()
	return s.legacyAdd(ctx, t, content, principal, map[string]any{
		"category":      category,
		"importance":    importance,
		"legacy_source": "add_to_global_memory",
	}, "Added to global memory (category: "+category+")")
}

// AddToLearnedMemory stores an observed pattern under the legacy learned
// type.
func (s *Service) AddToLearnedMemory(ctx context.Context, content, patternType string, confidence float64, principal string) (*LegacyAddResult, error) {
	if patternType == "" {
		patternType = "insight"
	}
	t := LegacyLearned()
	return s.legacyAdd(ctx, t, content, principal, map[string]any{
		"pattern_type":  patternType,
		"confidence":    confidence,
		"legacy_source": "add_to_learned_memory",
	}, "Added to learned memory (pattern: "+patternType+")")
}

// AddToAgentMemory stores agent-specific content, routing through the agent
// fallback chain. When the per-agent collection is missing but another agent
// collection exists, the write lands there rather than creating a new
// collection.
func (s *Service) AddToAgentMemory(ctx context.Context, content, agentID, memoryType string, principal string) (*LegacyAddResult, error) {
	if memoryType == "" {
		memoryType = "general"
	}
	t := LegacyAgent(agentID)
	return s.legacyAdd(ctx, t, content, principal, map[string]any{
		"agent_id":          agentID,
		"agent_memory_type": memoryType,
		"legacy_source":     "add_to_agent_memory",
	}, "Added to agent memory (agent: "+agentID+")")
}

func (s *Service) legacyAdd(ctx context.Context, t LegacyType, content, principal string, metadata map[string]any, message string) (*LegacyAddResult, error) {
	collection := s.resolveLegacy(t)
	if err := s.ensureLegacyCollection(ctx, collection, principal); err != nil {
		return nil, err
	}

	metadata["memory_type"] = t.String()
	res, err := s.Add(ctx, AddParams{
		Collection: collection,
		Content:    content,
		Metadata:   metadata,
		Principal:  principal,
	})
	if err != nil {
		return nil, err
	}
	return &LegacyAddResult{
		ContentHash: res.ID,
		Collection:  collection,
		MemoryType:  t.String(),
		Message:     message,
	}, nil
}

// QueryMemory searches across the legacy memory types. types may name any of
// "global", "learned", "agent"; empty means all three. Results carry a
// synthetic memory_type derived from the collection they came from.
func (s *Service) QueryMemory(ctx context.Context, query string, types []string, limit int, minScore float32, principal string) (*SearchResult, error) {
	if len(types) == 0 {
		types = []string{"global", "learned", "agent"}
	}

	var collections []string
	for _, typ := range types {
		switch typ {
		case "global":
			if s.registry.Exists(GlobalCollection) {
				collections = append(collections, GlobalCollection)
			}
		case "learned":
			if s.registry.Exists(LearnedCollection) {
				collections = append(collections, LearnedCollection)
			}
		case "agent":
			collections = append(collections, s.registry.NamesWithPrefix(AgentCollectionPrefix)...)
		default:
			return nil, Errorf(KindValidation, "unknown memory type %q", typ)
		}
	}
	if len(collections) == 0 {
		return &SearchResult{}, nil
	}

	result, err := s.Search(ctx, SearchParams{
		Query:       query,
		Collections: collections,
		Limit:       limit,
		MinScore:    minScore,
		Principal:   principal,
	})
	if err != nil {
		return nil, err
	}
	attachMemoryType(result.Hits)
	return result, nil
}

// CompareAgainstLearnedMemory checks a situation against stored learned
// patterns only.
func (s *Service) CompareAgainstLearnedMemory(ctx context.Context, situation, comparisonType string, limit int, principal string) (*SearchResult, error) {
	if comparisonType == "" {
		comparisonType = "similarity"
	}
	if !s.registry.Exists(LearnedCollection) {
		return &SearchResult{}, nil
	}

	result, err := s.Search(ctx, SearchParams{
		Query:       situation,
		Collections: []string{LearnedCollection},
		Limit:       limit,
		Principal:   principal,
	})
	if err != nil {
		return nil, err
	}
	attachMemoryType(result.Hits)
	return result, nil
}

// attachMemoryType annotates hits with the legacy type implied by their
// collection, for callers that predate collections.
func attachMemoryType(hits []SearchHit) {
	for i := range hits {
		if hits[i].Payload == nil {
			hits[i].Payload = make(map[string]any)
		}
		switch {
		case hits[i].Collection == GlobalCollection:
			hits[i].Payload["memory_type"] = "global"
		case hits[i].Collection == LearnedCollection:
			hits[i].Payload["memory_type"] = "learned"
		case strings.HasPrefix(hits[i].Collection, AgentCollectionPrefix):
			hits[i].Payload["memory_type"] = "agent"
		}
	}
}
