package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

// registerAdminTools adds the lifecycle tools operators use to maintain an
// automaton's tool contracts, tests and status.
func (s *Server) registerAdminTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("automata_remove_tool",
			mcplib.WithDescription(`Remove a tool contract from an automaton. Removing a tool that is not
declared changes nothing.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("name",
				mcplib.Description("Name of the tool to remove"),
				mcplib.Required(),
			),
			actorArg,
		),
		s.handleRemoveTool,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_define_test",
			mcplib.WithDescription(`Define a new test for an automaton. Test names are unique per automaton.
The scenario and expected result are passed to the executor as-is.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("name",
				mcplib.Description("Test name, e.g. books a room"),
				mcplib.Required(),
			),
			mcplib.WithString("description",
				mcplib.Description("What the test checks"),
			),
			mcplib.WithString("type",
				mcplib.Description("Test type"),
				mcplib.Enum(string(model.TestTypeUnit), string(model.TestTypeIntegration), string(model.TestTypeE2E), string(model.TestTypePerformance)),
				mcplib.Required(),
			),
			mcplib.WithObject("scenario",
				mcplib.Description("Scenario the executor runs"),
				mcplib.Required(),
			),
			mcplib.WithObject("expected_result",
				mcplib.Description("Result the run is compared against"),
			),
			actorArg,
		),
		s.handleDefineTest,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_set_active",
			mcplib.WithDescription(`Activate or deactivate an automaton. Deactivation keeps every version,
test and result; routers stop seeing it in the automata resource.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithBoolean("active",
				mcplib.Description("true to activate, false to deactivate"),
				mcplib.Required(),
			),
			actorArg,
		),
		s.handleSetActive,
	)

	// automata_delete_automaton: hard delete, guarded by confirm.
	s.mcpServer.AddTool(
		mcplib.NewTool("automata_delete_automaton",
			mcplib.WithDescription(`Permanently delete an automaton with its versions, tools, tests, metrics
and change history. Test results are kept. Prefer automata_set_active with
active=false unless the automaton must be gone.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithBoolean("confirm",
				mcplib.Description("Must be true"),
				mcplib.Required(),
			),
			actorArg,
		),
		s.handleDeleteAutomaton,
	)
}

func (s *Server) handleRemoveTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_remove_tool", err), nil
	}
	name := request.GetString("name", "")
	if name == "" {
		return s.failure("automata_remove_tool", apperrors.Invalid("name", "is required")), nil
	}
	if err := s.svc.RemoveTool(ctx, a.ID, name, s.actorOf(request)); err != nil {
		return s.failure("automata_remove_tool", err), nil
	}
	return jsonResult(map[string]any{
		"automaton_id": a.ID,
		"removed":      name,
	})
}

func (s *Server) handleDefineTest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_define_test", err), nil
	}
	scenario, err := objectArg(request, "scenario")
	if err != nil {
		return s.failure("automata_define_test", err), nil
	}
	expected, err := objectArg(request, "expected_result")
	if err != nil {
		return s.failure("automata_define_test", err), nil
	}
	t, err := s.svc.DefineTest(ctx, model.DefineTestRequest{
		AutomatonID:    a.ID,
		Name:           request.GetString("name", ""),
		Description:    request.GetString("description", ""),
		Type:           model.TestType(request.GetString("type", "")),
		Scenario:       scenario,
		ExpectedResult: expected,
		Actor:          s.actorOf(request),
	})
	if err != nil {
		return s.failure("automata_define_test", err), nil
	}
	return jsonResult(t)
}

func (s *Server) handleSetActive(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_set_active", err), nil
	}
	if _, ok := request.GetArguments()["active"]; !ok {
		return s.failure("automata_set_active", apperrors.Invalid("active", "is required")), nil
	}
	updated, err := s.svc.SetAutomatonActive(ctx, a.ID, request.GetBool("active", false), s.actorOf(request))
	if err != nil {
		return s.failure("automata_set_active", err), nil
	}
	return jsonResult(updated)
}

func (s *Server) handleDeleteAutomaton(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_delete_automaton", err), nil
	}
	if !request.GetBool("confirm", false) {
		return s.failure("automata_delete_automaton", apperrors.Invalid("confirm", "must be true to delete an automaton")), nil
	}
	if err := s.svc.DeleteAutomaton(ctx, a.ID, s.actorOf(request)); err != nil {
		return s.failure("automata_delete_automaton", err), nil
	}
	return jsonResult(map[string]any{
		"deleted": a.Name,
		"id":      a.ID,
	})
}
