package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mnemon-dev/mnemon/memory"
)

// Resource URIs served by the memory server.
const (
	resourceCollections = "memory://collections"
	resourceHealth      = "memory://health"
)

func (s *Server) listResources() ListResourcesResult {
	return ListResourcesResult{
		Resources: []Resource{
			{
				URI:         resourceCollections,
				Name:        "Memory collections",
				Description: "All registered collections with their metadata",
				MimeType:    "application/json",
			},
			{
				URI:         resourceHealth,
				Name:        "Server health",
				Description: "Component availability and error statistics",
				MimeType:    "application/json",
			},
		},
	}
}

func (s *Server) readResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	var payload any
	switch uri {
	case resourceCollections:
		cols := s.svc.Registry().List(memory.ListFilter{})
		payload = map[string]any{
			"collections": cols,
			"count":       len(cols),
		}
	case resourceHealth:
		payload = map[string]any{
			"server":  s.cfg.Server.Name,
			"version": s.cfg.Server.Version,
			"mode":    s.cfg.Server.Mode,
			"time":    time.Now().UTC().Format(time.RFC3339),
			"errors":  s.stats.Snapshot(),
		}
	default:
		return nil, memory.Errorf(memory.KindNotFound, "unknown resource %q", uri)
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return &ReadResourceResult{
		Contents: []ResourceContents{{
			URI:      uri,
			MimeType: "application/json",
			Text:     string(text),
		}},
	}, nil
}
