package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/automata/internal/model"
)

const (
	automataURI      = "automata://automata"
	automatonURIRoot = "automata://automata/"
	resourceChanges  = 20
	resourceMIMEType = "application/json"
)

func (s *Server) registerResources() {
	// automata://automata: every active automaton.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			automataURI,
			"Automata",
			mcplib.WithResourceDescription("Every active automaton in the registry"),
			mcplib.WithMIMEType(resourceMIMEType),
		),
		s.handleAutomata,
	)

	// automata://automata/{name}/current: current version and tools.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"automata://automata/{name}/current",
			"Current Version",
			mcplib.WithTemplateDescription("Current system prompt and tool contracts of an automaton"),
			mcplib.WithTemplateMIMEType(resourceMIMEType),
		),
		s.handleAutomatonCurrent,
	)

	// automata://automata/{name}/history: recent ledger entries.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"automata://automata/{name}/history",
			"Change History",
			mcplib.WithTemplateDescription("Most recent changes to an automaton"),
			mcplib.WithTemplateMIMEType(resourceMIMEType),
		),
		s.handleAutomatonHistory,
	)
}

// parseAutomatonURI extracts the automaton reference from
// automata://automata/{name}/{suffix}.
func parseAutomatonURI(uri, suffix string) (string, error) {
	rest, ok := strings.CutPrefix(uri, automatonURIRoot)
	if !ok {
		return "", fmt.Errorf("mcp: invalid automaton URI: %s", uri)
	}
	name, ok := strings.CutSuffix(rest, "/"+suffix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid automaton URI: %s", uri)
	}
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("mcp: invalid automaton URI: empty or nested name in %s", uri)
	}
	return name, nil
}

func textResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal resource: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEType,
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAutomata(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	automata, err := s.svc.ListAutomata(ctx, model.AutomatonFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("mcp: list automata: %w", err)
	}
	return textResource(automataURI, automata)
}

func (s *Server) handleAutomatonCurrent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	ref, err := parseAutomatonURI(uri, "current")
	if err != nil {
		return nil, err
	}
	a, err := s.svc.ResolveAutomaton(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("mcp: current version: %w", err)
	}
	v, err := s.svc.GetCurrent(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("mcp: current version: %w", err)
	}
	tools, err := s.svc.ListTools(ctx, a.ID, false)
	if err != nil {
		return nil, fmt.Errorf("mcp: current version: %w", err)
	}
	return textResource(uri, map[string]any{
		"automaton": a.Name,
		"version":   v,
		"tools":     tools,
	})
}

func (s *Server) handleAutomatonHistory(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	ref, err := parseAutomatonURI(uri, "history")
	if err != nil {
		return nil, err
	}
	a, err := s.svc.ResolveAutomaton(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("mcp: history: %w", err)
	}
	changes, err := s.svc.History(ctx, model.ChangeFilter{AutomatonID: a.ID, Limit: resourceChanges})
	if err != nil {
		return nil, fmt.Errorf("mcp: history: %w", err)
	}
	compact := make([]map[string]any, len(changes))
	for i, c := range changes {
		compact[i] = compactChange(c)
	}
	return textResource(uri, map[string]any{
		"automaton": a.Name,
		"changes":   compact,
	})
}
