// Package executor runs tool-call scenarios against an MCP tool server.
//
// A scenario is {"calls":[{"name":"...","arguments":{...}}]}. Every call is
// sent as a JSON-RPC tools/call over streamable HTTP and the collected
// results, in call order, become the test's actual result.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
)

// Call is one tool invocation in a scenario.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Scenario is the scenario shape ToolCallExecutor understands.
type Scenario struct {
	Calls []Call `json:"calls"`
}

// CallResult is the recorded outcome of one Call. Exactly one of Result and
// Error is set.
type CallResult struct {
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ToolCallExecutor implements registry.Executor against an MCP tool server.
type ToolCallExecutor struct {
	endpoint string
	headers  map[string]string
	client   mcplib.Implementation
	logger   *slog.Logger
}

// Option configures a ToolCallExecutor.
type Option func(*ToolCallExecutor)

// WithHeaders adds HTTP headers (for example Authorization) to every
// request sent to the tool server.
func WithHeaders(h map[string]string) Option {
	return func(e *ToolCallExecutor) {
		for k, v := range h {
			e.headers[k] = v
		}
	}
}

// New returns an executor for the tool server at endpoint.
func New(endpoint string, logger *slog.Logger, version string, opts ...Option) *ToolCallExecutor {
	e := &ToolCallExecutor{
		endpoint: endpoint,
		headers:  map[string]string{},
		client:   mcplib.Implementation{Name: "automata", Version: version},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ registry.Executor = (*ToolCallExecutor)(nil)

// ParseScenario decodes and checks a tool-call scenario.
func ParseScenario(raw json.RawMessage) (Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("executor: decode scenario: %w", err)
	}
	if len(sc.Calls) == 0 {
		return Scenario{}, errors.New("executor: scenario has no calls")
	}
	for i, c := range sc.Calls {
		if strings.TrimSpace(c.Name) == "" {
			return Scenario{}, fmt.Errorf("executor: call %d has no tool name", i)
		}
	}
	return sc, nil
}

// Execute runs req.Test's scenario. Calls to tools the automaton did not
// declare fail the test without contacting the server. Transport failures
// are returned as errors; a tool's own error result is recorded and only
// fails the test.
func (e *ToolCallExecutor) Execute(ctx context.Context, req registry.ExecutionRequest) (registry.ExecutionOutcome, error) {
	sc, err := ParseScenario(req.Test.Scenario)
	if err != nil {
		return registry.ExecutionOutcome{}, err
	}

	declared := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		declared[t.Name] = true
	}
	for _, c := range sc.Calls {
		if !declared[c.Name] {
			return registry.ExecutionOutcome{
				Detail: fmt.Sprintf("scenario calls undeclared tool %q", c.Name),
			}, nil
		}
	}

	c, err := mcpclient.NewStreamableHttpClient(e.endpoint, mcptransport.WithHTTPHeaders(e.headers))
	if err != nil {
		return registry.ExecutionOutcome{}, fmt.Errorf("executor: create client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      e.client,
		},
	}); err != nil {
		return registry.ExecutionOutcome{}, fmt.Errorf("executor: initialize %s: %w", e.endpoint, err)
	}

	start := time.Now()
	results := make([]CallResult, 0, len(sc.Calls))
	var firstErr string
	for _, call := range sc.Calls {
		res, err := c.CallTool(ctx, mcplib.CallToolRequest{
			Params: mcplib.CallToolParams{Name: call.Name, Arguments: call.Arguments},
		})
		if err != nil {
			return registry.ExecutionOutcome{}, fmt.Errorf("executor: call %s: %w", call.Name, err)
		}
		cr := collect(call.Name, res)
		if cr.Error != "" && firstErr == "" {
			firstErr = fmt.Sprintf("tool %s returned an error: %s", call.Name, cr.Error)
		}
		results = append(results, cr)
	}
	elapsed := time.Since(start)

	actual, err := json.Marshal(results)
	if err != nil {
		return registry.ExecutionOutcome{}, fmt.Errorf("executor: encode results: %w", err)
	}

	out := registry.ExecutionOutcome{Actual: actual, Duration: elapsed}
	if len(req.Test.ExpectedResult) > 0 {
		out.Passed = model.JSONEqual(actual, req.Test.ExpectedResult)
		if !out.Passed {
			out.Detail = "actual result differs from expected result"
		}
	} else {
		out.Passed = firstErr == ""
		out.Detail = firstErr
	}

	e.logger.Debug("executor: scenario finished",
		"test_id", req.Test.ID, "calls", len(results), "passed", out.Passed, "duration", elapsed)
	return out, nil
}

// collect turns a tool result into a CallResult. Structured content wins;
// otherwise text content is kept as JSON when it parses and as a JSON
// string when it does not.
func collect(name string, res *mcplib.CallToolResult) CallResult {
	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if res.IsError {
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "tool error"
		}
		return CallResult{Name: name, Error: msg}
	}

	if res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			return CallResult{Name: name, Result: b}
		}
	}
	values := make([]json.RawMessage, 0, len(texts))
	for _, t := range texts {
		values = append(values, textValue(t))
	}
	switch len(values) {
	case 0:
		return CallResult{Name: name, Result: json.RawMessage(`null`)}
	case 1:
		return CallResult{Name: name, Result: values[0]}
	}
	b, _ := json.Marshal(values)
	return CallResult{Name: name, Result: b}
}

func textValue(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return model.CanonicalJSON(json.RawMessage(s))
	}
	b, _ := json.Marshal(s)
	return b
}
