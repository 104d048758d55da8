package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
)

const (
	defaultResultLimit  = 20
	maxResultLimit      = 200
	defaultHistoryLimit = 50
)

var automatonArg = mcplib.WithString("automaton",
	mcplib.Description("Automaton id or unique name"),
	mcplib.Required(),
)

var actorArg = mcplib.WithString("actor",
	mcplib.Description("Who is making the change. Defaults to the server's configured actor."),
)

func (s *Server) registerTools() {
	// automata_get_current: what a domain router loads before dispatching.
	s.mcpServer.AddTool(
		mcplib.NewTool("automata_get_current",
			mcplib.WithDescription(`Get the current version of an automaton: its system prompt and the tool
contracts it declares.

WHEN TO USE: Before dispatching work to an automaton. The returned prompt is
the one that is live; tools marked required must be available to the run.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
		),
		s.handleGetCurrent,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_list_tools",
			mcplib.WithDescription("List the tool contracts an automaton declares, ordered by name."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithBoolean("required_only",
				mcplib.Description("Only return tools the automaton cannot run without"),
			),
		),
		s.handleListTools,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_list_versions",
			mcplib.WithDescription(`List every version of an automaton, oldest first. Prompts are truncated;
use automata_get_current for the full current prompt.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
		),
		s.handleListVersions,
	)

	// automata_create_version: new prompt snapshot; does not promote.
	s.mcpServer.AddTool(
		mcplib.NewTool("automata_create_version",
			mcplib.WithDescription(`Create a new version of an automaton's system prompt.

The new version is NOT made current unless it is the automaton's first
version; call automata_promote after its tests pass. Submitting a prompt
identical to the current or latest version returns that version instead of
creating a duplicate. Whitespace is significant.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("prompt",
				mcplib.Description("The full system prompt text"),
				mcplib.Required(),
			),
			mcplib.WithString("description",
				mcplib.Description("What changed in this version"),
			),
			actorArg,
		),
		s.handleCreateVersion,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_promote",
			mcplib.WithDescription(`Make a version the automaton's current version. Promoting an older
version is a rollback. Promoting the version that is already current
changes nothing.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("version_id",
				mcplib.Description("The version to make current"),
				mcplib.Required(),
			),
			actorArg,
		),
		s.handlePromote,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_declare_tool",
			mcplib.WithDescription(`Declare (or redeclare) a tool contract for an automaton. Redeclaring with
an identical contract records no change.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("name",
				mcplib.Description("Tool name, e.g. create_booking"),
				mcplib.Required(),
			),
			mcplib.WithString("description",
				mcplib.Description("What the tool does"),
			),
			mcplib.WithObject("input_schema",
				mcplib.Description("JSON Schema of the tool's arguments"),
			),
			mcplib.WithObject("output_schema",
				mcplib.Description("JSON Schema of the tool's result"),
			),
			mcplib.WithBoolean("required",
				mcplib.Description("Whether the automaton cannot run without this tool"),
			),
			actorArg,
		),
		s.handleDeclareTool,
	)

	// automata_run_test: execute one test and persist its result.
	s.mcpServer.AddTool(
		mcplib.NewTool("automata_run_test",
			mcplib.WithDescription(`Run one test against a version and record the result.

The version defaults to the current version of the test's automaton. The
result is recorded even when the run fails, errors or times out.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("test_id",
				mcplib.Description("The test to run"),
				mcplib.Required(),
			),
			mcplib.WithString("version_id",
				mcplib.Description("Version to run against. Defaults to the current version."),
			),
		),
		s.handleRunTest,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_run_suite",
			mcplib.WithDescription(`Run every test of an automaton against one version and summarize the
outcome. Inactive tests are recorded as skipped.

WHEN TO USE: Before promoting a new version. With record_pass_rate the pass
rate is also stored as a pass_rate metric for the version.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			automatonArg,
			mcplib.WithString("version_id",
				mcplib.Description("Version to run against. Defaults to the current version."),
			),
			mcplib.WithBoolean("record_pass_rate",
				mcplib.Description("Record the pass rate as a metric"),
			),
		),
		s.handleRunSuite,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_list_results",
			mcplib.WithDescription(`List test results, newest first. Give exactly one of test_id or automaton.
Results outlive their test and automaton, so a test_id of a removed test
still returns its history.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("test_id",
				mcplib.Description("Results of one test"),
			),
			mcplib.WithString("automaton",
				mcplib.Description("Results of every test of an automaton (id or name)"),
			),
			mcplib.WithString("status",
				mcplib.Description("Only results with this status"),
				mcplib.Enum(string(model.TestStatusPassed), string(model.TestStatusFailed), string(model.TestStatusError), string(model.TestStatusSkipped)),
			),
			mcplib.WithString("since",
				mcplib.Description("Only results executed at or after this RFC 3339 time"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(maxResultLimit),
				mcplib.DefaultNumber(defaultResultLimit),
			),
		),
		s.handleListResults,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_record_metric",
			mcplib.WithDescription(`Record an evaluation metric for an automaton, optionally tied to a version.
metric_type is open vocabulary: accuracy, latency, error_rate, ...`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("metric_type",
				mcplib.Description("Metric name, e.g. accuracy"),
				mcplib.Required(),
			),
			mcplib.WithNumber("value",
				mcplib.Description("Measured value"),
				mcplib.Required(),
			),
			mcplib.WithString("version_id",
				mcplib.Description("Version the measurement belongs to"),
			),
			mcplib.WithString("unit",
				mcplib.Description("Unit of the value, e.g. ms or ratio"),
			),
			mcplib.WithNumber("sample_size",
				mcplib.Description("Number of samples behind the value"),
				mcplib.Min(0),
			),
			mcplib.WithString("evaluation_date",
				mcplib.Description("When the evaluation happened (RFC 3339). Defaults to now."),
			),
			mcplib.WithObject("metadata",
				mcplib.Description("Free-form metadata"),
			),
		),
		s.handleRecordMetric,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_aggregate",
			mcplib.WithDescription(`Aggregate a metric (count, mean, min, max) over an inclusive date range,
either across all versions or grouped by version.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("metric_type",
				mcplib.Description("Metric name to aggregate"),
				mcplib.Required(),
			),
			mcplib.WithString("from",
				mcplib.Description("Start of the range (RFC 3339, inclusive)"),
			),
			mcplib.WithString("to",
				mcplib.Description("End of the range (RFC 3339, inclusive)"),
			),
			mcplib.WithBoolean("by_version",
				mcplib.Description("Group the aggregate by version"),
			),
		),
		s.handleAggregate,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("automata_history",
			mcplib.WithDescription(`Read an automaton's change ledger in chronological order. With a limit,
the most recent changes are returned. Snapshots are omitted unless
include_snapshots is set.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			automatonArg,
			mcplib.WithString("change_type",
				mcplib.Description("Only changes of this type, e.g. prompt_update"),
			),
			mcplib.WithString("since",
				mcplib.Description("Only changes at or after this RFC 3339 time"),
			),
			mcplib.WithString("until",
				mcplib.Description("Only changes at or before this RFC 3339 time"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum changes to return"),
				mcplib.Min(1),
				mcplib.DefaultNumber(defaultHistoryLimit),
			),
			mcplib.WithBoolean("include_snapshots",
				mcplib.Description("Include before/after snapshots"),
			),
		),
		s.handleHistory,
	)
}

func (s *Server) handleGetCurrent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_get_current", err), nil
	}
	v, err := s.svc.GetCurrent(ctx, a.ID)
	if err != nil {
		return s.failure("automata_get_current", err), nil
	}
	tools, err := s.svc.ListTools(ctx, a.ID, false)
	if err != nil {
		return s.failure("automata_get_current", err), nil
	}
	return jsonResult(map[string]any{
		"automaton": map[string]any{
			"id":     a.ID,
			"name":   a.Name,
			"domain": a.Domain,
			"active": a.Active,
		},
		"version": v,
		"tools":   tools,
	})
}

func (s *Server) handleListTools(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_list_tools", err), nil
	}
	tools, err := s.svc.ListTools(ctx, a.ID, request.GetBool("required_only", false))
	if err != nil {
		return s.failure("automata_list_tools", err), nil
	}
	return jsonResult(map[string]any{
		"automaton_id": a.ID,
		"tools":        tools,
		"total":        len(tools),
	})
}

func (s *Server) handleListVersions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_list_versions", err), nil
	}
	versions, err := s.svc.ListVersions(ctx, a.ID)
	if err != nil {
		return s.failure("automata_list_versions", err), nil
	}
	compact := make([]map[string]any, len(versions))
	for i, v := range versions {
		compact[i] = compactVersion(v)
	}
	return jsonResult(map[string]any{
		"automaton_id": a.ID,
		"versions":     compact,
		"total":        len(versions),
	})
}

func (s *Server) handleCreateVersion(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_create_version", err), nil
	}
	v, err := s.svc.CreateVersion(ctx, model.CreateVersionRequest{
		AutomatonID: a.ID,
		Prompt:      request.GetString("prompt", ""),
		Description: request.GetString("description", ""),
		Actor:       s.actorOf(request),
	})
	if err != nil {
		return s.failure("automata_create_version", err), nil
	}
	return jsonResult(compactVersion(v))
}

func (s *Server) handlePromote(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_promote", err), nil
	}
	versionID, err := uuidArg(request, "version_id", true)
	if err != nil {
		return s.failure("automata_promote", err), nil
	}
	v, err := s.svc.Promote(ctx, a.ID, *versionID, s.actorOf(request))
	if err != nil {
		return s.failure("automata_promote", err), nil
	}
	return jsonResult(compactVersion(v))
}

func (s *Server) handleDeclareTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_declare_tool", err), nil
	}
	input, err := objectArg(request, "input_schema")
	if err != nil {
		return s.failure("automata_declare_tool", err), nil
	}
	output, err := objectArg(request, "output_schema")
	if err != nil {
		return s.failure("automata_declare_tool", err), nil
	}
	t, err := s.svc.DeclareTool(ctx, model.DeclareToolRequest{
		AutomatonID:  a.ID,
		Name:         request.GetString("name", ""),
		Description:  request.GetString("description", ""),
		InputSchema:  input,
		OutputSchema: output,
		Required:     request.GetBool("required", false),
		Actor:        s.actorOf(request),
	})
	if err != nil {
		return s.failure("automata_declare_tool", err), nil
	}
	return jsonResult(t)
}

func (s *Server) handleRunTest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	testID, err := uuidArg(request, "test_id", true)
	if err != nil {
		return s.failure("automata_run_test", err), nil
	}
	versionID, err := uuidArg(request, "version_id", false)
	if err != nil {
		return s.failure("automata_run_test", err), nil
	}
	if versionID == nil {
		test, err := s.svc.GetTest(ctx, *testID)
		if err != nil {
			return s.failure("automata_run_test", err), nil
		}
		current, err := s.svc.GetCurrent(ctx, test.AutomatonID)
		if err != nil {
			return s.failure("automata_run_test", err), nil
		}
		versionID = &current.ID
	}
	r, err := s.svc.RunTest(ctx, *testID, *versionID)
	if err != nil {
		return s.failure("automata_run_test", err), nil
	}
	return jsonResult(r)
}

func (s *Server) handleRunSuite(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_run_suite", err), nil
	}
	versionID, err := uuidArg(request, "version_id", false)
	if err != nil {
		return s.failure("automata_run_suite", err), nil
	}
	report, err := s.svc.RunSuite(ctx, registry.SuiteRequest{
		AutomatonID:    a.ID,
		VersionID:      versionID,
		RecordPassRate: request.GetBool("record_pass_rate", false),
	})
	if err != nil {
		return s.failure("automata_run_suite", err), nil
	}
	results := make([]map[string]any, len(report.Results))
	for i, r := range report.Results {
		results[i] = compactResult(r)
	}
	return jsonResult(map[string]any{
		"summary":   generateSuiteSummary(report),
		"version":   report.Version,
		"counts":    report.Counts,
		"pass_rate": report.PassRate,
		"metric":    report.Metric,
		"results":   results,
	})
}

func (s *Server) handleListResults(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var f model.ResultFilter
	testID, err := uuidArg(request, "test_id", false)
	if err != nil {
		return s.failure("automata_list_results", err), nil
	}
	f.TestID = testID
	if request.GetString("automaton", "") != "" {
		a, err := s.resolve(ctx, request)
		if err != nil {
			return s.failure("automata_list_results", err), nil
		}
		f.AutomatonID = &a.ID
	}
	f.Status = model.TestStatus(request.GetString("status", ""))
	if f.Since, err = timeArg(request, "since"); err != nil {
		return s.failure("automata_list_results", err), nil
	}
	limit := request.GetInt("limit", defaultResultLimit)
	if limit < 1 || limit > maxResultLimit {
		return s.failure("automata_list_results", apperrors.Invalid("limit", "must be between 1 and 200")), nil
	}

	seq, err := s.svc.ListResults(ctx, f)
	if err != nil {
		return s.failure("automata_list_results", err), nil
	}
	results := make([]map[string]any, 0, limit)
	for r, err := range seq {
		if err != nil {
			return s.failure("automata_list_results", err), nil
		}
		results = append(results, compactResult(r))
		if len(results) == limit {
			break
		}
	}
	return jsonResult(map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleRecordMetric(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_record_metric", err), nil
	}
	if _, ok := request.GetArguments()["value"]; !ok {
		return s.failure("automata_record_metric", apperrors.Invalid("value", "is required")), nil
	}
	versionID, err := uuidArg(request, "version_id", false)
	if err != nil {
		return s.failure("automata_record_metric", err), nil
	}
	evaluated, err := timeArg(request, "evaluation_date")
	if err != nil {
		return s.failure("automata_record_metric", err), nil
	}
	rawMeta, err := objectArg(request, "metadata")
	if err != nil {
		return s.failure("automata_record_metric", err), nil
	}
	var metadata map[string]any
	if rawMeta != nil {
		if err := json.Unmarshal(rawMeta, &metadata); err != nil {
			return s.failure("automata_record_metric", apperrors.Invalid("metadata", "must be a JSON object")), nil
		}
	}

	req := model.RecordMetricRequest{
		AutomatonID: a.ID,
		VersionID:   versionID,
		Type:        request.GetString("metric_type", ""),
		Value:       request.GetFloat("value", 0),
		Unit:        request.GetString("unit", ""),
		SampleSize:  request.GetInt("sample_size", 0),
		Metadata:    metadata,
	}
	if evaluated != nil {
		req.EvaluationDate = *evaluated
	}
	m, err := s.svc.RecordMetric(ctx, req)
	if err != nil {
		return s.failure("automata_record_metric", err), nil
	}
	return jsonResult(m)
}

func (s *Server) handleAggregate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_aggregate", err), nil
	}
	var r model.DateRange
	if r.From, err = timeArg(request, "from"); err != nil {
		return s.failure("automata_aggregate", err), nil
	}
	if r.To, err = timeArg(request, "to"); err != nil {
		return s.failure("automata_aggregate", err), nil
	}
	metricType := request.GetString("metric_type", "")

	if request.GetBool("by_version", false) {
		groups, err := s.svc.AggregateByVersion(ctx, a.ID, metricType, r)
		if err != nil {
			return s.failure("automata_aggregate", err), nil
		}
		return jsonResult(map[string]any{
			"automaton_id": a.ID,
			"metric_type":  metricType,
			"versions":     groups,
		})
	}
	agg, err := s.svc.Aggregate(ctx, a.ID, metricType, r)
	if err != nil {
		return s.failure("automata_aggregate", err), nil
	}
	return jsonResult(map[string]any{
		"automaton_id": a.ID,
		"metric_type":  metricType,
		"aggregate":    agg,
	})
}

func (s *Server) handleHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a, err := s.resolve(ctx, request)
	if err != nil {
		return s.failure("automata_history", err), nil
	}
	f := model.ChangeFilter{
		AutomatonID: a.ID,
		ChangeType:  model.ChangeType(request.GetString("change_type", "")),
		Limit:       request.GetInt("limit", defaultHistoryLimit),
	}
	if f.Since, err = timeArg(request, "since"); err != nil {
		return s.failure("automata_history", err), nil
	}
	if f.Until, err = timeArg(request, "until"); err != nil {
		return s.failure("automata_history", err), nil
	}
	changes, err := s.svc.History(ctx, f)
	if err != nil {
		return s.failure("automata_history", err), nil
	}
	if request.GetBool("include_snapshots", false) {
		return jsonResult(map[string]any{"changes": changes, "total": len(changes)})
	}
	compact := make([]map[string]any, len(changes))
	for i, c := range changes {
		compact[i] = compactChange(c)
	}
	return jsonResult(map[string]any{"changes": compact, "total": len(changes)})
}
