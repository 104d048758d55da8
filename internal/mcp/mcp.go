// Package mcp exposes the automaton registry over the Model Context
// Protocol.
//
// Domain routers read the current version and tool contracts of an
// automaton through it; admin tools and CI pipelines create versions,
// promote them, run tests and record metrics. Automata may be addressed by
// id or by name. Registry errors come back as tool error results whose text
// starts with the error category (not_found, invalid, conflict, storage).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
)

// Server wraps the MCP server with the registry service.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *registry.Service
	logger    *slog.Logger
	actor     string
}

// New creates and configures a new MCP server with all resources, tools
// and prompts. actor is recorded for mutations whose caller names none.
func New(svc *registry.Service, logger *slog.Logger, version, actor string) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
		actor:  actor,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"automata",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerResources()
	s.registerTools()
	s.registerAdminTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// resolve looks up the automaton named by the "automaton" argument.
func (s *Server) resolve(ctx context.Context, request mcplib.CallToolRequest) (model.Automaton, error) {
	return s.svc.ResolveAutomaton(ctx, request.GetString("automaton", ""))
}

// actorOf returns the "actor" argument or the server default.
func (s *Server) actorOf(request mcplib.CallToolRequest) string {
	if a := request.GetString("actor", ""); a != "" {
		return a
	}
	return s.actor
}

func uuidArg(request mcplib.CallToolRequest, name string, required bool) (*uuid.UUID, error) {
	raw := request.GetString(name, "")
	if !required {
		return ids.ParseOptional(name, raw)
	}
	id, err := ids.Parse(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func timeArg(request mcplib.CallToolRequest, name string) (*time.Time, error) {
	raw := request.GetString(name, "")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperrors.Invalid(name, "must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// objectArg re-encodes an object argument as JSON. Missing means nil.
func objectArg(request mcplib.CallToolRequest, name string) (json.RawMessage, error) {
	v, ok := request.GetArguments()[name]
	if !ok || v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		// Some clients send objects as JSON text.
		if !json.Valid([]byte(s)) {
			return nil, apperrors.Invalid(name, "must be a JSON object")
		}
		return json.RawMessage(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Invalid(name, "must be a JSON object")
	}
	return b, nil
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// failure turns a registry error into a tool error result. Storage failures
// are logged since the caller only sees the category.
func (s *Server) failure(tool string, err error) *mcplib.CallToolResult {
	category := "error"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		category = "not_found"
	case errors.Is(err, apperrors.ErrValidation):
		category = "invalid"
	case errors.Is(err, apperrors.ErrConflict):
		category = "conflict"
	case errors.Is(err, apperrors.ErrStorage):
		category = "storage"
		s.logger.Error("mcp: tool failed", "tool", tool, "error", err)
	}
	return errorResult(fmt.Sprintf("%s: %v", category, err))
}
