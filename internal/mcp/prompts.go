package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// release-version: walks an operator through create, test, promote.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("release-version",
			mcplib.WithPromptDescription("Release a new system prompt for an automaton: create, test, then promote"),
			mcplib.WithArgument("automaton",
				mcplib.ArgumentDescription("Automaton id or name"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReleaseVersionPrompt,
	)

	// rollback: restore a previous version.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("rollback",
			mcplib.WithPromptDescription("Roll an automaton back to an earlier version"),
			mcplib.WithArgument("automaton",
				mcplib.ArgumentDescription("Automaton id or name"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("reason",
				mcplib.ArgumentDescription("Why the current version is being rolled back"),
			),
		),
		s.handleRollbackPrompt,
	)

	// router-setup: system prompt snippet for a domain router.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("router-setup",
			mcplib.WithPromptDescription("System prompt snippet for a domain router that dispatches to registered automata"),
		),
		s.handleRouterSetupPrompt,
	)
}

func (s *Server) handleReleaseVersionPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	automaton := request.Params.Arguments["automaton"]
	if automaton == "" {
		return nil, fmt.Errorf("automaton argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Release a new version of %s", automaton),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Release a new system prompt for the automaton %q. Follow these steps:

1. CALL automata_get_current with automaton=%q to read the live prompt and
   the tools it relies on.

2. CALL automata_create_version with the new prompt and a description of
   what changed. If the returned version is the current one, the prompt is
   unchanged and there is nothing to release.

3. CALL automata_run_suite with the new version_id and record_pass_rate=true.
   Do not continue if any test failed or errored; report the failures.

4. COMPARE pass rates with automata_aggregate (metric_type="pass_rate",
   by_version=true). The new version should not score lower than the
   current one.

5. CALL automata_promote with the new version_id.`, automaton, automaton),
				},
			},
		},
	}, nil
}

func (s *Server) handleRollbackPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	automaton := request.Params.Arguments["automaton"]
	if automaton == "" {
		return nil, fmt.Errorf("automaton argument is required")
	}
	reason := request.Params.Arguments["reason"]
	if reason == "" {
		reason = "not given"
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Roll back %s", automaton),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Roll back the automaton %q (reason: %s).

1. CALL automata_history with automaton=%q and change_type="version_promote"
   to see which versions were live before the current one.

2. CALL automata_list_versions to confirm the version you are returning to.

3. CALL automata_promote with that version_id. Rolling back never deletes
   the newer version; it can be promoted again later.`, automaton, reason, automaton),
				},
			},
		},
	}, nil
}

func (s *Server) handleRouterSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Domain router workflow over the automaton registry",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You route requests to specialized automata. Each automaton has a versioned
system prompt and a set of declared tools, stored in the automaton registry.

## Before dispatching

Call automata_get_current with the automaton's name. Use the returned
system prompt verbatim and make sure every tool marked required is
available. Never dispatch to an automaton whose required tools are missing.

## Available Tools

- automata_get_current: Current prompt and tool contracts (use FIRST)
- automata_list_tools: Declared tool contracts only
- automata_list_versions: All versions, oldest first
- automata_history: What changed and who changed it

Do not create or promote versions while routing; that is an operator task.`,
				},
			},
		},
	}, nil
}
