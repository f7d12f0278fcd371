package mcp

import (
	"github.com/mnemon-dev/mnemon/memory"
)

const memoryUsageGuide = `You have access to a persistent memory server.

Storing:
- Use add_memory for single facts, decisions, and observations.
- Use add_document for long text; it is split into overlapping chunks.
- Identical content is stored once: repeated writes are idempotent.
- Content that is nearly identical to an existing record replaces it
  instead of accumulating near-copies.

Retrieving:
- Use search_memory with a natural-language query. Results come back
  ranked by similarity across all collections you may read.
- Pass collections to narrow the search, min_score to cut weak matches.

Housekeeping:
- get_collection_stats shows what a collection holds.
- delete_collection requires confirm=true and admin permission; it
  removes every record in the collection.`

const collectionOrganizationGuide = `Organize memory into purpose-built collections.

- One collection per topic or project, not per conversation. Use the
  project and category fields so list_collections filters stay useful.
- Tag collections with a small, consistent vocabulary.
- Default permissions are world-readable and creator-writable. Grant
  write access deliberately; "*" opens a set to every principal.
- The legacy collections (global_memory, learned_memory,
  agent_specific_memory_*) exist for old callers. New work should use
  named collections instead.`

var promptTexts = map[string]struct {
	description string
	text        string
}{
	"memory_usage_guide": {
		description: "How to store and retrieve memories effectively",
		text:        memoryUsageGuide,
	},
	"collection_organization_guide": {
		description: "How to organize collections, tags, and permissions",
		text:        collectionOrganizationGuide,
	},
}

func (s *Server) listPrompts() ListPromptsResult {
	result := ListPromptsResult{Prompts: []Prompt{}}
	for _, name := range []string{"memory_usage_guide", "collection_organization_guide"} {
		p := promptTexts[name]
		result.Prompts = append(result.Prompts, Prompt{
			Name:        name,
			Description: p.description,
		})
	}
	return result
}

func (s *Server) getPrompt(name string) (*GetPromptResult, error) {
	p, ok := promptTexts[name]
	if !ok {
		return nil, memory.Errorf(memory.KindNotFound, "unknown prompt %q", name)
	}
	return &GetPromptResult{
		Description: p.description,
		Messages: []PromptMessage{{
			Role:    "assistant",
			Content: PromptContent{Type: "text", Text: p.text},
		}},
	}, nil
}
