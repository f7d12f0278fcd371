package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mnemon-dev/mnemon/config"
	"github.com/mnemon-dev/mnemon/memory"
	"github.com/mnemon-dev/mnemon/retry"
)

// Server lifecycle. Only initialize is accepted before READY; after shutdown
// the loop drains in-flight requests and exits.
const (
	stateUninitialized int32 = iota
	stateReady
	stateShuttingDown
)

// Server speaks newline-delimited JSON-RPC on a reader/writer pair
// (stdin/stdout in production). Requests run in their own goroutines, so
// responses may complete out of order; each carries its request's id, and a
// write mutex keeps envelopes whole on the wire.
type Server struct {
	cfg   *config.Config
	svc   *memory.Service
	stats *retry.Stats
	tools *ToolHandler

	state   atomic.Int32
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewServer wires the protocol surface over the memory service.
func NewServer(cfg *config.Config, svc *memory.Service, stats *retry.Stats) *Server {
	return &Server{
		cfg:   cfg,
		svc:   svc,
		stats: stats,
		tools: NewToolHandler(svc, stats, cfg),
	}
}

// Run serves requests until EOF, shutdown, or context cancellation. In-flight
// requests are always drained, never cancelled.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	log.Printf("[MCP] Server %q listening (mode=%s)", s.cfg.Server.Name, s.cfg.Server.Mode)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if !s.dispatch(ctx, line, out) {
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			s.wg.Wait()
			return err
		}
	}

	s.wg.Wait()
	log.Printf("[MCP] Server stopped")
	return nil
}

// dispatch routes one request line. It returns false when the loop should
// stop (shutdown).
func (s *Server) dispatch(ctx context.Context, line []byte, out io.Writer) bool {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.sendError(out, nil, codeParse, "Parse error")
		return true
	}
	// Valid JSON without a method is still malformed input.
	if req.Method == "" {
		s.sendError(out, req.ID, codeParse, "Parse error")
		return true
	}

	// Notifications get no response.
	if req.Method == "notifications/initialized" {
		return true
	}

	switch req.Method {
	case "initialize":
		s.state.CompareAndSwap(stateUninitialized, stateReady)
		s.send(out, &Response{JSONRPC: "2.0", ID: req.ID, Result: s.initializeResult()})
		return true
	case "shutdown":
		s.state.Store(stateShuttingDown)
		s.send(out, &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
		return false
	}

	if s.state.Load() != stateReady {
		s.sendError(out, req.ID, codeNotInitialized, "Server not initialized")
		return true
	}
	if !s.methodAllowed(req.Method) {
		s.sendError(out, req.ID, codeMethodNotFound,
			fmt.Sprintf("Method %q not available in %s mode", req.Method, s.cfg.Server.Mode))
		return true
	}

	switch req.Method {
	case "tools/list", "tools/call", "resources/list", "resources/read", "prompts/list", "prompts/get":
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.send(out, s.handle(ctx, &req))
		}()
		return true
	default:
		s.sendError(out, req.ID, codeMethodNotFound, "Method not found")
		return true
	}
}

// methodAllowed applies the serving mode: tools-only drops the prompts
// surface, prompts-only drops tools and resources.
func (s *Server) methodAllowed(method string) bool {
	switch s.cfg.Server.Mode {
	case config.ModeToolsOnly:
		return !strings.HasPrefix(method, "prompts/")
	case config.ModePromptsOnly:
		return !strings.HasPrefix(method, "tools/") && !strings.HasPrefix(method, "resources/")
	default:
		return true
	}
}

func (s *Server) initializeResult() InitializeResult {
	caps := ServerCapabilities{}
	if s.methodAllowed("tools/list") {
		caps.Tools = &ToolsCapability{}
	}
	if s.methodAllowed("resources/list") {
		caps.Resources = &ResourcesCapability{}
	}
	if s.methodAllowed("prompts/list") {
		caps.Prompts = &PromptsCapability{}
	}
	return InitializeResult{
		ProtocolVersion: config.ProtocolVersion,
		ServerInfo: ServerInfo{
			Name:    s.cfg.Server.Name,
			Version: s.cfg.Server.Version,
		},
		Capabilities: caps,
	}
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: s.tools.Tools()}}
	case "tools/call":
		return s.handleToolCall(ctx, req)
	case "resources/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: s.listResources()}
	case "resources/read":
		return s.handleResourceRead(ctx, req)
	case "prompts/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: s.listPrompts()}
	case "prompts/get":
		return s.handlePromptGet(req)
	default:
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeMethodNotFound, Message: "Method not found"}}
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInvalidParams, Message: "Invalid params"}}
	}

	result, err := s.tools.Handle(ctx, params.Name, params.Arguments)
	if err != nil {
		// Domain failures are still well-formed tool responses, never
		// dropped connections.
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: CallToolResult{
				Content: []ToolContent{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
				IsError: true,
			},
		}
	}

	text, err := json.Marshal(result)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInternal, Message: "Internal error"}}
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ToolContent{{Type: "text", Text: string(text)}},
		},
	}
}

func (s *Server) handleResourceRead(ctx context.Context, req *Request) *Response {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInvalidParams, Message: "Invalid params"}}
	}

	result, err := s.readResource(ctx, params.URI)
	if err != nil {
		code := codeInternal
		if memory.IsNotFound(err) {
			code = codeInvalidParams
		}
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: code, Message: err.Error()}}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handlePromptGet(req *Request) *Response {
	var params GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInvalidParams, Message: "Invalid params"}}
	}

	result, err := s.getPrompt(params.Name)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInvalidParams, Message: err.Error()}}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// send writes one response envelope as a single line. The mutex keeps
// concurrent handler goroutines from interleaving envelopes.
func (s *Server) send(out io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[MCP] Marshal response: %v", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		log.Printf("[MCP] Write response: %v", err)
	}
}

func (s *Server) sendError(out io.Writer, id any, code int, message string) {
	s.send(out, &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}
