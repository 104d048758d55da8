package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
	"github.com/ashita-ai/automata/internal/testutil"
)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// echoExecutor passes every test by returning its expected result.
var echoExecutor = registry.ExecutorFunc(func(_ context.Context, req registry.ExecutionRequest) (registry.ExecutionOutcome, error) {
	return registry.ExecutionOutcome{Actual: req.Test.ExpectedResult, Passed: true}, nil
})

type fixture struct {
	server    *Server
	svc       *registry.Service
	automaton model.Automaton
	v1        model.Version
	test      model.Test
}

// newFixture builds a server over a fresh SQLite registry holding one
// automaton (booking) with one version, one tool and one test.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	clock := &tickClock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	svc := registry.New(testutil.NewSQLiteStore(t), echoExecutor, testutil.TestLogger(), registry.WithClock(clock.Now))

	a, err := svc.CreateAutomaton(ctx, model.CreateAutomatonRequest{Name: "booking", Domain: "travel", Actor: "alice"})
	require.NoError(t, err)
	v1, err := svc.CreateVersion(ctx, model.CreateVersionRequest{AutomatonID: a.ID, Prompt: "You book rooms.", Actor: "alice"})
	require.NoError(t, err)
	_, err = svc.DeclareTool(ctx, model.DeclareToolRequest{
		AutomatonID: a.ID,
		Name:        "create_booking",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Required:    true,
		Actor:       "alice",
	})
	require.NoError(t, err)
	test, err := svc.DefineTest(ctx, model.DefineTestRequest{
		AutomatonID:    a.ID,
		Name:           "books a room",
		Type:           model.TestTypeIntegration,
		Scenario:       json.RawMessage(`{"calls":[{"name":"create_booking","arguments":{"slot":"9am"}}]}`),
		ExpectedResult: json.RawMessage(`{"booked":true}`),
		Actor:          "alice",
	})
	require.NoError(t, err)

	return fixture{
		server:    New(svc, testutil.TestLogger(), "test", "mcp-test"),
		svc:       svc,
		automaton: a,
		v1:        v1,
		test:      test,
	}
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func decodeResult(t *testing.T, result *mcplib.CallToolResult, v any) {
	t.Helper()
	require.NotNil(t, result)
	text := parseToolText(t, result)
	require.False(t, result.IsError, "unexpected tool error: %s", text)
	require.NoError(t, json.Unmarshal([]byte(text), v))
}

func TestRegisterTools(t *testing.T) {
	f := newFixture(t)

	resp := f.server.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var listed struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &listed))
	var names []string
	for _, tool := range listed.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"automata_get_current", "automata_list_tools", "automata_list_versions",
		"automata_create_version", "automata_promote", "automata_declare_tool",
		"automata_run_test", "automata_run_suite", "automata_list_results",
		"automata_record_metric", "automata_aggregate", "automata_history",
		"automata_remove_tool", "automata_define_test", "automata_set_active",
		"automata_delete_automaton",
	}, names)
}

func TestHandleGetCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ref := range []string{"booking", f.automaton.ID.String()} {
		result, err := f.server.handleGetCurrent(ctx, toolRequest("automata_get_current", map[string]any{"automaton": ref}))
		require.NoError(t, err)

		var got struct {
			Automaton struct {
				Name string `json:"name"`
			} `json:"automaton"`
			Version model.Version `json:"version"`
			Tools   []model.Tool  `json:"tools"`
		}
		decodeResult(t, result, &got)
		assert.Equal(t, "booking", got.Automaton.Name)
		assert.Equal(t, f.v1.ID, got.Version.ID)
		assert.Equal(t, "You book rooms.", got.Version.SystemPrompt)
		require.Len(t, got.Tools, 1)
		assert.Equal(t, "create_booking", got.Tools[0].Name)
	}
}

func TestHandleGetCurrent_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		args   map[string]any
		prefix string
	}{
		{"missing automaton", map[string]any{}, "invalid:"},
		{"unknown name", map[string]any{"automaton": "nope"}, "not_found:"},
		{"unknown id", map[string]any{"automaton": uuid.New().String()}, "not_found:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.server.handleGetCurrent(ctx, toolRequest("automata_get_current", tt.args))
			require.NoError(t, err, "registry errors are tool results, not protocol errors")
			assert.True(t, result.IsError)
			assert.True(t, strings.HasPrefix(parseToolText(t, result), tt.prefix), parseToolText(t, result))
		})
	}
}

func TestHandleCreateVersionAndPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleCreateVersion(ctx, toolRequest("automata_create_version", map[string]any{
		"automaton":   "booking",
		"prompt":      "You book rooms politely.",
		"description": "tone",
	}))
	require.NoError(t, err)
	var v2 struct {
		ID            uuid.UUID `json:"id"`
		VersionNumber int       `json:"version_number"`
		IsCurrent     bool      `json:"is_current"`
		CreatedBy     string    `json:"created_by"`
	}
	decodeResult(t, result, &v2)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.False(t, v2.IsCurrent)
	assert.Equal(t, "mcp-test", v2.CreatedBy, "server actor is the default")

	result, err = f.server.handlePromote(ctx, toolRequest("automata_promote", map[string]any{
		"automaton":  "booking",
		"version_id": v2.ID.String(),
		"actor":      "bob",
	}))
	require.NoError(t, err)
	var promoted struct {
		IsCurrent bool `json:"is_current"`
	}
	decodeResult(t, result, &promoted)
	assert.True(t, promoted.IsCurrent)

	current, err := f.svc.GetCurrent(ctx, f.automaton.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	history, err := f.svc.History(ctx, model.ChangeFilter{AutomatonID: f.automaton.ID, ChangeType: model.ChangeVersionPromote})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "bob", history[0].Actor)
}

func TestHandlePromote_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handlePromote(ctx, toolRequest("automata_promote", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid: invalid version_id: is required")

	result, err = f.server.handlePromote(ctx, toolRequest("automata_promote", map[string]any{
		"automaton": "booking", "version_id": "not-a-uuid",
	}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid version_id: is not a valid id")

	result, err = f.server.handlePromote(ctx, toolRequest("automata_promote", map[string]any{
		"automaton": "booking", "version_id": uuid.Nil.String(),
	}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid version_id: must not be the nil id")

	other, err := f.svc.CreateAutomaton(ctx, model.CreateAutomatonRequest{Name: "billing", Domain: "finance"})
	require.NoError(t, err)
	result, err = f.server.handlePromote(ctx, toolRequest("automata_promote", map[string]any{
		"automaton": other.Name, "version_id": f.v1.ID.String(),
	}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "conflict:"))
}

func TestHandleListVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateVersion(ctx, model.CreateVersionRequest{AutomatonID: f.automaton.ID, Prompt: strings.Repeat("p", 400)})
	require.NoError(t, err)

	result, err := f.server.handleListVersions(ctx, toolRequest("automata_list_versions", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	var got struct {
		Versions []map[string]any `json:"versions"`
		Total    int              `json:"total"`
	}
	decodeResult(t, result, &got)
	assert.Equal(t, 2, got.Total)
	assert.EqualValues(t, 1, got.Versions[0]["version_number"])
	assert.Len(t, got.Versions[1]["prompt_preview"], maxCompactPrompt+3)
}

func TestHandleDeclareTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	args := map[string]any{
		"automaton":    "booking",
		"name":         "check_availability",
		"description":  "Looks up open slots",
		"input_schema": map[string]any{"type": "object", "properties": map[string]any{"day": map[string]any{"type": "string"}}},
		"required":     true,
	}
	result, err := f.server.handleDeclareTool(ctx, toolRequest("automata_declare_tool", args))
	require.NoError(t, err)
	var tool model.Tool
	decodeResult(t, result, &tool)
	assert.Equal(t, "check_availability", tool.Name)
	assert.True(t, tool.Required)
	assert.JSONEq(t, `{"properties":{"day":{"type":"string"}},"type":"object"}`, string(tool.InputSchema))

	// Schemas sent as JSON text are accepted too; the contract is unchanged.
	args["input_schema"] = `{"type":"object","properties":{"day":{"type":"string"}}}`
	result, err = f.server.handleDeclareTool(ctx, toolRequest("automata_declare_tool", args))
	require.NoError(t, err)
	var again model.Tool
	decodeResult(t, result, &again)
	assert.Equal(t, tool.ID, again.ID)

	history, err := f.svc.History(ctx, model.ChangeFilter{AutomatonID: f.automaton.ID, ChangeType: model.ChangeToolAdd})
	require.NoError(t, err)
	assert.Len(t, history, 2, "create_booking from the fixture and check_availability once")

	args["input_schema"] = `{not json`
	result, err = f.server.handleDeclareTool(ctx, toolRequest("automata_declare_tool", args))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "invalid:"))

	result, err = f.server.handleListTools(ctx, toolRequest("automata_list_tools", map[string]any{
		"automaton": "booking", "required_only": true,
	}))
	require.NoError(t, err)
	var listed struct {
		Total int `json:"total"`
	}
	decodeResult(t, result, &listed)
	assert.Equal(t, 2, listed.Total)
}

func TestHandleRunTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleRunTest(ctx, toolRequest("automata_run_test", map[string]any{
		"test_id": f.test.ID.String(),
	}))
	require.NoError(t, err)
	var r model.TestResult
	decodeResult(t, result, &r)
	assert.Equal(t, model.TestStatusPassed, r.Status)
	require.NotNil(t, r.VersionID)
	assert.Equal(t, f.v1.ID, *r.VersionID, "defaults to the current version")

	result, err = f.server.handleRunTest(ctx, toolRequest("automata_run_test", map[string]any{
		"test_id": uuid.New().String(),
	}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "not_found:"))
}

func TestHandleRunSuite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleRunSuite(ctx, toolRequest("automata_run_suite", map[string]any{
		"automaton":        "booking",
		"record_pass_rate": true,
	}))
	require.NoError(t, err)
	var got struct {
		Summary  string           `json:"summary"`
		PassRate float64          `json:"pass_rate"`
		Metric   *model.Metric    `json:"metric"`
		Results  []map[string]any `json:"results"`
	}
	decodeResult(t, result, &got)
	assert.Equal(t, "Version 1 passed 1 of 1 executed test(s) (100%).", got.Summary)
	assert.InDelta(t, 1.0, got.PassRate, 1e-9)
	require.NotNil(t, got.Metric)
	assert.Equal(t, registry.PassRateMetric, got.Metric.MetricType)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "passed", got.Results[0]["status"])
}

func TestHandleListResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		_, err := f.svc.RunTest(ctx, f.test.ID, f.v1.ID)
		require.NoError(t, err)
	}

	result, err := f.server.handleListResults(ctx, toolRequest("automata_list_results", map[string]any{
		"automaton": "booking",
		"limit":     2,
	}))
	require.NoError(t, err)
	var got struct {
		Results []map[string]any `json:"results"`
		Total   int              `json:"total"`
	}
	decodeResult(t, result, &got)
	assert.Equal(t, 2, got.Total)

	result, err = f.server.handleListResults(ctx, toolRequest("automata_list_results", map[string]any{
		"test_id": f.test.ID.String(),
		"status":  "failed",
	}))
	require.NoError(t, err)
	decodeResult(t, result, &got)
	assert.Zero(t, got.Total)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"neither selector", map[string]any{}},
		{"both selectors", map[string]any{"automaton": "booking", "test_id": f.test.ID.String()}},
		{"bad since", map[string]any{"automaton": "booking", "since": "yesterday"}},
		{"limit too large", map[string]any{"automaton": "booking", "limit": 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.server.handleListResults(ctx, toolRequest("automata_list_results", tt.args))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(parseToolText(t, result), "invalid:"), parseToolText(t, result))
		})
	}
}

func TestHandleRecordMetricAndAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, value := range []float64{0.9, 0.94} {
		result, err := f.server.handleRecordMetric(ctx, toolRequest("automata_record_metric", map[string]any{
			"automaton":       "booking",
			"metric_type":     "accuracy",
			"value":           value,
			"version_id":      f.v1.ID.String(),
			"sample_size":     50,
			"evaluation_date": time.Date(2026, 5, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"metadata":        map[string]any{"suite": "nightly"},
		}))
		require.NoError(t, err)
		var m model.Metric
		decodeResult(t, result, &m)
		assert.Equal(t, 50, m.SampleSize)
		assert.Equal(t, "nightly", m.Metadata["suite"])
	}

	result, err := f.server.handleAggregate(ctx, toolRequest("automata_aggregate", map[string]any{
		"automaton":   "booking",
		"metric_type": "accuracy",
		"from":        "2026-05-01T00:00:00Z",
		"to":          "2026-05-02T00:00:00Z",
	}))
	require.NoError(t, err)
	var agg struct {
		Aggregate model.MetricAggregate `json:"aggregate"`
	}
	decodeResult(t, result, &agg)
	assert.EqualValues(t, 2, agg.Aggregate.Count)
	assert.InDelta(t, 0.92, agg.Aggregate.Mean, 1e-9)

	result, err = f.server.handleAggregate(ctx, toolRequest("automata_aggregate", map[string]any{
		"automaton":   "booking",
		"metric_type": "accuracy",
		"by_version":  true,
	}))
	require.NoError(t, err)
	var grouped struct {
		Versions []model.VersionAggregate `json:"versions"`
	}
	decodeResult(t, result, &grouped)
	require.Len(t, grouped.Versions, 1)
	require.NotNil(t, grouped.Versions[0].VersionID)
	assert.Equal(t, f.v1.ID, *grouped.Versions[0].VersionID)

	result, err = f.server.handleRecordMetric(ctx, toolRequest("automata_record_metric", map[string]any{
		"automaton": "booking", "metric_type": "accuracy",
	}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid value")
}

func TestHandleHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleHistory(ctx, toolRequest("automata_history", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	var got struct {
		Changes []map[string]any `json:"changes"`
		Total   int              `json:"total"`
	}
	decodeResult(t, result, &got)
	require.Equal(t, 4, got.Total)
	assert.Equal(t, "automaton_create", got.Changes[0]["change_type"])
	assert.Equal(t, "prompt_update", got.Changes[1]["change_type"])
	_, hasAfter := got.Changes[1]["after"]
	assert.False(t, hasAfter, "snapshots are omitted by default")

	result, err = f.server.handleHistory(ctx, toolRequest("automata_history", map[string]any{
		"automaton":         "booking",
		"change_type":       "prompt_update",
		"include_snapshots": true,
	}))
	require.NoError(t, err)
	var full struct {
		Changes []model.Change `json:"changes"`
	}
	decodeResult(t, result, &full)
	require.Len(t, full.Changes, 1)
	assert.Contains(t, string(full.Changes[0].After), f.v1.PromptHash)

	result, err = f.server.handleHistory(ctx, toolRequest("automata_history", map[string]any{
		"automaton": "booking",
		"limit":     2,
	}))
	require.NoError(t, err)
	var recent struct {
		Changes []map[string]any `json:"changes"`
	}
	decodeResult(t, result, &recent)
	require.Len(t, recent.Changes, 2)
	assert.Equal(t, "tool_add", recent.Changes[0]["change_type"], "limit keeps the newest changes")
	assert.Equal(t, "test_add", recent.Changes[1]["change_type"])
}

func TestFailureCategories(t *testing.T) {
	f := newFixture(t)

	result := f.server.failure("automata_test", assert.AnError)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "error: "))
}

func TestErrorResult(t *testing.T) {
	result := errorResult("something went wrong")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "something went wrong", parseToolText(t, result))
}
