package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemon-dev/mnemon/config"
	"github.com/mnemon-dev/mnemon/memory"
	"github.com/mnemon-dev/mnemon/retry"
)

// defaultPrincipal is the acting identity when a caller supplies none.
const defaultPrincipal = "anonymous"

// ToolHandler executes tool calls against the memory service.
type ToolHandler struct {
	svc   *memory.Service
	stats *retry.Stats
	cfg   *config.Config

	started time.Time
}

// NewToolHandler creates the tool dispatcher.
func NewToolHandler(svc *memory.Service, stats *retry.Stats, cfg *config.Config) *ToolHandler {
	return &ToolHandler{
		svc:     svc,
		stats:   stats,
		cfg:     cfg,
		started: time.Now(),
	}
}

type toolDef struct {
	tool    Tool
	handler func(ctx context.Context, args map[string]any) (any, error)
}

// Handle runs one tool call by name.
func (h *ToolHandler) Handle(ctx context.Context, name string, args map[string]any) (any, error) {
	for _, def := range h.defs() {
		if def.tool.Name == name {
			return def.handler(ctx, args)
		}
	}
	return nil, memory.Errorf(memory.KindValidation, "unknown tool %q", name)
}

// Tools returns the tool definitions for tools/list.
func (h *ToolHandler) Tools() []Tool {
	defs := h.defs()
	tools := make([]Tool, len(defs))
	for i, def := range defs {
		tools[i] = def.tool
	}
	return tools
}

func (h *ToolHandler) defs() []toolDef {
	permissionsProp := map[string]any{
		"type":        "object",
		"description": "Access control lists. '*' grants any principal.",
		"properties": map[string]any{
			"read":  arrayProperty("Principals allowed to read", stringProperty("principal id")),
			"write": arrayProperty("Principals allowed to write", stringProperty("principal id")),
			"admin": arrayProperty("Principals allowed to administer", stringProperty("principal id")),
		},
	}

	return []toolDef{
		{
			tool: Tool{
				Name:        "create_collection",
				Description: "Create a named memory collection with optional tags, category, project, and permissions.",
				InputSchema: objectSchema(map[string]any{
					"name":        stringProperty("Unique collection name"),
					"description": stringProperty("What this collection holds"),
					"tags":        arrayProperty("Classification tags", stringProperty("tag")),
					"category":    stringProperty("Organizational category"),
					"project":     stringProperty("Owning project"),
					"permissions": permissionsProp,
					"principal":   stringProperty("Acting identity, becomes the collection owner"),
				}, "name"),
			},
			handler: h.createCollection,
		},
		{
			tool: Tool{
				Name:        "list_collections",
				Description: "List collections, optionally filtered by tags, category, project, or owner.",
				InputSchema: objectSchema(map[string]any{
					"tags":     arrayProperty("Match collections carrying any of these tags", stringProperty("tag")),
					"category": stringProperty("Exact category to match"),
					"project":  stringProperty("Exact project to match"),
					"owned_by": stringProperty("Creator principal to match"),
				}),
			},
			handler: h.listCollections,
		},
		{
			tool: Tool{
				Name:        "get_collection",
				Description: "Fetch the metadata of one collection.",
				InputSchema: objectSchema(map[string]any{
					"name": stringProperty("Collection name"),
				}, "name"),
			},
			handler: h.getCollection,
		},
		{
			tool: Tool{
				Name:        "update_collection",
				Description: "Update collection metadata. Only supplied fields change; records are never re-embedded.",
				InputSchema: objectSchema(map[string]any{
					"name":        stringProperty("Collection name"),
					"description": stringProperty("New description"),
					"tags":        arrayProperty("Replacement tag set", stringProperty("tag")),
					"category":    stringProperty("New category"),
					"project":     stringProperty("New project"),
					"permissions": permissionsProp,
					"principal":   stringProperty("Acting identity"),
				}, "name"),
			},
			handler: h.updateCollection,
		},
		{
			tool: Tool{
				Name:        "delete_collection",
				Description: "Delete a collection and every record in it. Requires confirm=true.",
				InputSchema: objectSchema(map[string]any{
					"name":      stringProperty("Collection name"),
					"confirm":   booleanProperty("Must be true to actually delete"),
					"principal": stringProperty("Acting identity, must be a collection admin"),
				}, "name"),
			},
			handler: h.deleteCollection,
		},
		{
			tool: Tool{
				Name:        "get_collection_stats",
				Description: "Point count, status, top tags, contributors, and average content size for a collection.",
				InputSchema: objectSchema(map[string]any{
					"collection": stringProperty("Collection name"),
				}, "collection"),
			},
			handler: h.collectionStats,
		},
		{
			tool: Tool{
				Name:        "add_memory",
				Description: "Store a piece of text in a collection. Identical content is an idempotent upsert; near-duplicates upsert over the matched record.",
				InputSchema: objectSchema(map[string]any{
					"collection": stringProperty("Target collection"),
					"content":    stringProperty("Text to remember"),
					"metadata":   objectProperty("Caller metadata stored alongside the content"),
					"tags":       arrayProperty("Record tags", stringProperty("tag")),
					"principal":  stringProperty("Acting identity"),
				}, "collection", "content"),
			},
			handler: h.addMemory,
		},
		{
			tool: Tool{
				Name:        "add_document",
				Description: "Store a long document: split into overlapping chunks along paragraph and sentence boundaries, each chunk stored as its own record.",
				InputSchema: objectSchema(map[string]any{
					"collection": stringProperty("Target collection"),
					"content":    stringProperty("Document text"),
					"metadata":   objectProperty("Caller metadata attached to every chunk"),
					"tags":       arrayProperty("Record tags", stringProperty("tag")),
					"principal":  stringProperty("Acting identity"),
				}, "collection", "content"),
			},
			handler: h.addDocument,
		},
		{
			tool: Tool{
				Name:        "search_memory",
				Description: "Similarity search across one or more collections, merged and ranked by score. A failing collection is skipped, not fatal.",
				InputSchema: objectSchema(map[string]any{
					"query":       stringProperty("Search text"),
					"collections": arrayProperty("Collections to search; empty means every readable collection", stringProperty("collection name")),
					"limit":       integerProperty("Maximum results (default 10)"),
					"min_score":   numberProperty("Minimum similarity score"),
					"principal":   stringProperty("Acting identity"),
				}, "query"),
			},
			handler: h.searchMemory,
		},
		{
			tool: Tool{
				Name:        "get_memory",
				Description: "Fetch one record by its id.",
				InputSchema: objectSchema(map[string]any{
					"memory_id":  stringProperty("Record id"),
					"collection": stringProperty("Collection holding the record"),
				}, "memory_id", "collection"),
			},
			handler: h.getMemory,
		},
		{
			tool: Tool{
				Name:        "delete_memory",
				Description: "Delete one record by its id.",
				InputSchema: objectSchema(map[string]any{
					"memory_id":  stringProperty("Record id"),
					"collection": stringProperty("Collection holding the record"),
					"principal":  stringProperty("Acting identity"),
				}, "memory_id", "collection"),
			},
			handler: h.deleteMemory,
		},
		{
			tool: Tool{
				Name:        "add_to_global_memory",
				Description: "Store shared knowledge in the legacy global memory.",
				InputSchema: objectSchema(map[string]any{
					"content":    stringProperty("Text to remember"),
					"category":   stringProperty("Knowledge category (default 'general')"),
					"importance": numberProperty("Importance from 0 to 1"),
					"agent_id":   stringProperty("Calling agent id"),
				}, "content"),
			},
			handler: h.addToGlobalMemory,
		},
		{
			tool: Tool{
				Name:        "add_to_learned_memory",
				Description: "Store an observed pattern in the legacy learned memory.",
				InputSchema: objectSchema(map[string]any{
					"content":      stringProperty("Pattern description"),
					"pattern_type": stringProperty("Kind of pattern (default 'insight')"),
					"confidence":   numberProperty("Confidence from 0 to 1"),
					"agent_id":     stringProperty("Calling agent id"),
				}, "content"),
			},
			handler: h.addToLearnedMemory,
		},
		{
			tool: Tool{
				Name:        "add_to_agent_memory",
				Description: "Store agent-specific content, routed through the per-agent collection fallback chain.",
				InputSchema: objectSchema(map[string]any{
					"content":     stringProperty("Text to remember"),
					"agent_id":    stringProperty("Agent whose memory this is"),
					"memory_type": stringProperty("Kind of memory (default 'general')"),
				}, "content", "agent_id"),
			},
			handler: h.addToAgentMemory,
		},
		{
			tool: Tool{
				Name:        "query_memory",
				Description: "Search the legacy memory types (global, learned, agent). Results carry a memory_type field.",
				InputSchema: objectSchema(map[string]any{
					"query":        stringProperty("Search text"),
					"memory_types": arrayProperty("Types to search; empty means all", stringEnumProperty("memory type", "global", "learned", "agent")),
					"limit":        integerProperty("Maximum results (default 10)"),
					"min_score":    numberProperty("Minimum similarity score"),
					"agent_id":     stringProperty("Calling agent id"),
				}, "query"),
			},
			handler: h.queryMemory,
		},
		{
			tool: Tool{
				Name:        "compare_against_learned_memory",
				Description: "Compare a situation against stored learned patterns.",
				InputSchema: objectSchema(map[string]any{
					"situation":       stringProperty("Situation to compare"),
					"comparison_type": stringProperty("Kind of comparison (default 'similarity')"),
					"limit":           integerProperty("Maximum results (default 5)"),
					"agent_id":        stringProperty("Calling agent id"),
				}, "situation"),
			},
			handler: h.compareAgainstLearnedMemory,
		},
		{
			tool: Tool{
				Name:        "system_health",
				Description: "Health report: component availability, storage connectivity, and error statistics.",
				InputSchema: objectSchema(map[string]any{}),
			},
			handler: h.systemHealth,
		},
	}
}

func (h *ToolHandler) createCollection(ctx context.Context, args map[string]any) (any, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return nil, err
	}
	principal := principalArg(args, "principal")

	spec := memory.CollectionSpec{
		Name:        name,
		Description: stringArg(args, "description"),
		Tags:        stringSliceArg(args, "tags"),
		Category:    stringArg(args, "category"),
		Project:     stringArg(args, "project"),
		Permissions: permissionsArg(args),
		CreatedBy:   principal,
	}
	return h.svc.Registry().Create(ctx, spec)
}

func (h *ToolHandler) listCollections(ctx context.Context, args map[string]any) (any, error) {
	cols := h.svc.Registry().List(memory.ListFilter{
		Tags:     stringSliceArg(args, "tags"),
		Category: stringArg(args, "category"),
		Project:  stringArg(args, "project"),
		OwnedBy:  stringArg(args, "owned_by"),
	})
	return map[string]any{
		"collections": cols,
		"count":       len(cols),
	}, nil
}

func (h *ToolHandler) getCollection(ctx context.Context, args map[string]any) (any, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return nil, err
	}
	return h.svc.Registry().Get(name)
}

func (h *ToolHandler) updateCollection(ctx context.Context, args map[string]any) (any, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return nil, err
	}

	spec := memory.UpdateSpec{UpdatedBy: principalArg(args, "principal")}
	if v, ok := args["description"].(string); ok {
		spec.Description = &v
	}
	if _, ok := args["tags"]; ok {
		spec.Tags = stringSliceArg(args, "tags")
	}
	if v, ok := args["category"].(string); ok {
		spec.Category = &v
	}
	if v, ok := args["project"].(string); ok {
		spec.Project = &v
	}
	spec.Permissions = permissionsArg(args)

	return h.svc.Registry().Update(ctx, name, spec)
}

func (h *ToolHandler) deleteCollection(ctx context.Context, args map[string]any) (any, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return nil, err
	}
	confirm, _ := args["confirm"].(bool)

	if err := h.svc.Registry().Delete(ctx, name, principalArg(args, "principal"), confirm); err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted": name,
		"message": fmt.Sprintf("Collection %q and all its memories were deleted", name),
	}, nil
}

func (h *ToolHandler) collectionStats(ctx context.Context, args map[string]any) (any, error) {
	name, err := requiredString(args, "collection")
	if err != nil {
		return nil, err
	}
	return h.svc.Stats(ctx, name)
}

func (h *ToolHandler) addMemory(ctx context.Context, args map[string]any) (any, error) {
	params, err := addParams(args)
	if err != nil {
		return nil, err
	}
	return h.svc.Add(ctx, params)
}

func (h *ToolHandler) addDocument(ctx context.Context, args map[string]any) (any, error) {
	params, err := addParams(args)
	if err != nil {
		return nil, err
	}
	return h.svc.AddDocument(ctx, params)
}

func addParams(args map[string]any) (memory.AddParams, error) {
	collection, err := requiredString(args, "collection")
	if err != nil {
		return memory.AddParams{}, err
	}
	content, err := requiredString(args, "content")
	if err != nil {
		return memory.AddParams{}, err
	}
	metadata, _ := args["metadata"].(map[string]any)
	return memory.AddParams{
		Collection: collection,
		Content:    content,
		Metadata:   metadata,
		Tags:       stringSliceArg(args, "tags"),
		Principal:  principalArg(args, "principal"),
	}, nil
}

// searchResponse is the wire shape of a search: merged hits plus which
// collections were covered and which were skipped.
type searchResponse struct {
	Results             []memory.SearchHit `json:"results"`
	Count               int                `json:"count"`
	SearchedCollections []string           `json:"searched_collections"`
	SkippedCollections  []string           `json:"skipped_collections,omitempty"`
}

func toSearchResponse(res *memory.SearchResult) searchResponse {
	out := searchResponse{
		Results:             res.Hits,
		Count:               len(res.Hits),
		SearchedCollections: res.SearchedCollections(),
	}
	if out.Results == nil {
		out.Results = []memory.SearchHit{}
	}
	for _, cr := range res.PerCollection {
		if cr.Skipped() {
			out.SkippedCollections = append(out.SkippedCollections, cr.Collection)
		}
	}
	return out
}

func (h *ToolHandler) searchMemory(ctx context.Context, args map[string]any) (any, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}

	res, err := h.svc.Search(ctx, memory.SearchParams{
		Query:       query,
		Collections: stringSliceArg(args, "collections"),
		Limit:       intArg(args, "limit", 0),
		MinScore:    float32(floatArg(args, "min_score", 0)),
		Principal:   principalArg(args, "principal"),
	})
	if err != nil {
		return nil, err
	}
	return toSearchResponse(res), nil
}

func (h *ToolHandler) getMemory(ctx context.Context, args map[string]any) (any, error) {
	id, err := requiredString(args, "memory_id")
	if err != nil {
		return nil, err
	}
	collection, err := requiredString(args, "collection")
	if err != nil {
		return nil, err
	}

	point, err := h.svc.Get(ctx, id, collection)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"memory_id":  point.ID,
		"collection": collection,
		"payload":    point.Payload,
	}, nil
}

func (h *ToolHandler) deleteMemory(ctx context.Context, args map[string]any) (any, error) {
	id, err := requiredString(args, "memory_id")
	if err != nil {
		return nil, err
	}
	collection, err := requiredString(args, "collection")
	if err != nil {
		return nil, err
	}

	if err := h.svc.Delete(ctx, id, collection, principalArg(args, "principal")); err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted":    id,
		"collection": collection,
	}, nil
}

func (h *ToolHandler) addToGlobalMemory(ctx context.Context, args map[string]any) (any, error) {
	content, err := requiredString(args, "content")
	if err != nil {
		return nil, err
	}
	return h.svc.AddToGlobalMemory(ctx, content,
		stringArg(args, "category"),
		floatArg(args, "importance", 0.5),
		principalArg(args, "agent_id"))
}

func (h *ToolHandler) addToLearnedMemory(ctx context.Context, args map[string]any) (any, error) {
	content, err := requiredString(args, "content")
	if err != nil {
		return nil, err
	}
	return h.svc.AddToLearnedMemory(ctx, content,
		stringArg(args, "pattern_type"),
		floatArg(args, "confidence", 0.5),
		principalArg(args, "agent_id"))
}

func (h *ToolHandler) addToAgentMemory(ctx context.Context, args map[string]any) (any, error) {
	content, err := requiredString(args, "content")
	if err != nil {
		return nil, err
	}
	agentID, err := requiredString(args, "agent_id")
	if err != nil {
		return nil, err
	}
	return h.svc.AddToAgentMemory(ctx, content, agentID, stringArg(args, "memory_type"), agentID)
}

func (h *ToolHandler) queryMemory(ctx context.Context, args map[string]any) (any, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}

	res, err := h.svc.QueryMemory(ctx, query,
		stringSliceArg(args, "memory_types"),
		intArg(args, "limit", 0),
		float32(floatArg(args, "min_score", 0)),
		principalArg(args, "agent_id"))
	if err != nil {
		return nil, err
	}
	return toSearchResponse(res), nil
}

func (h *ToolHandler) compareAgainstLearnedMemory(ctx context.Context, args map[string]any) (any, error) {
	situation, err := requiredString(args, "situation")
	if err != nil {
		return nil, err
	}

	res, err := h.svc.CompareAgainstLearnedMemory(ctx, situation,
		stringArg(args, "comparison_type"),
		intArg(args, "limit", 5),
		principalArg(args, "agent_id"))
	if err != nil {
		return nil, err
	}
	return toSearchResponse(res), nil
}

func (h *ToolHandler) systemHealth(ctx context.Context, args map[string]any) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s health\n\n", h.cfg.Server.Name)
	fmt.Fprintf(&b, "- version: %s\n", h.cfg.Server.Version)
	fmt.Fprintf(&b, "- mode: %s\n", h.cfg.Server.Mode)
	fmt.Fprintf(&b, "- uptime: %s\n", time.Since(h.started).Round(time.Second))
	fmt.Fprintf(&b, "- embedding model: %s (%d dims)\n", h.cfg.Embedding.ModelName, h.cfg.Embedding.Dimension)

	cols := h.svc.Registry().List(memory.ListFilter{})
	fmt.Fprintf(&b, "\n## Storage\n\n- collections: %d\n", len(cols))

	snap := h.stats.Snapshot()
	fmt.Fprintf(&b, "\n## Error statistics\n\n")
	fmt.Fprintf(&b, "- total errors: %d\n", snap.TotalErrors)
	fmt.Fprintf(&b, "- recovery attempts: %d\n", snap.RecoveryAttempts)
	fmt.Fprintf(&b, "- successful recoveries: %d\n", snap.SuccessfulRecoveries)
	for cat, n := range snap.ErrorsByCategory {
		fmt.Fprintf(&b, "- %s errors: %d\n", cat, n)
	}

	return map[string]any{
		"status": "ok",
		"report": b.String(),
	}, nil
}

// Argument decoding. JSON numbers arrive as float64 and string lists as
// []any.

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", memory.Errorf(memory.KindValidation, "missing required parameter %q", key)
	}
	return v, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func principalArg(args map[string]any, key string) string {
	if v, _ := args[key].(string); v != "" {
		return v
	}
	return defaultPrincipal
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func permissionsArg(args map[string]any) *memory.Permissions {
	raw, ok := args["permissions"].(map[string]any)
	if !ok {
		return nil
	}
	return &memory.Permissions{
		Read:  stringSliceArg(raw, "read"),
		Write: stringSliceArg(raw, "write"),
		Admin: stringSliceArg(raw, "admin"),
	}
}
