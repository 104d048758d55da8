package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/model"
)

func TestParseAutomatonURI(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		suffix    string
		want      string
		errSubstr string
	}{
		{name: "name", uri: "automata://automata/booking/current", suffix: "current", want: "booking"},
		{name: "uuid", uri: "automata://automata/0190f5a0-0000-7000-8000-000000000001/history", suffix: "history", want: "0190f5a0-0000-7000-8000-000000000001"},
		{name: "empty name", uri: "automata://automata//current", suffix: "current", errSubstr: "empty or nested"},
		{name: "nested name", uri: "automata://automata/a/b/current", suffix: "current", errSubstr: "empty or nested"},
		{name: "wrong suffix", uri: "automata://automata/booking/history", suffix: "current", errSubstr: "invalid automaton URI"},
		{name: "wrong scheme", uri: "other://automata/booking/current", suffix: "current", errSubstr: "invalid automaton URI"},
		{name: "empty", uri: "", suffix: "current", errSubstr: "invalid automaton URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAutomatonURI(tt.uri, tt.suffix)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func readResource(uri string) mcplib.ReadResourceRequest {
	return mcplib.ReadResourceRequest{Params: mcplib.ReadResourceParams{URI: uri}}
}

func resourceText(t *testing.T, contents []mcplib.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok, "expected TextResourceContents")
	assert.Equal(t, "application/json", tc.MIMEType)
	return tc.Text
}

func TestHandleAutomata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	retired, err := f.svc.CreateAutomaton(ctx, model.CreateAutomatonRequest{Name: "retired", Domain: "travel"})
	require.NoError(t, err)
	_, err = f.svc.SetAutomatonActive(ctx, retired.ID, false, "alice")
	require.NoError(t, err)

	contents, err := f.server.handleAutomata(ctx, readResource(automataURI))
	require.NoError(t, err)
	var automata []model.Automaton
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &automata))
	require.Len(t, automata, 1, "inactive automata are not listed")
	assert.Equal(t, "booking", automata[0].Name)
}

func TestHandleAutomatonCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uri := "automata://automata/booking/current"
	contents, err := f.server.handleAutomatonCurrent(ctx, readResource(uri))
	require.NoError(t, err)
	var got struct {
		Automaton string        `json:"automaton"`
		Version   model.Version `json:"version"`
		Tools     []model.Tool  `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &got))
	assert.Equal(t, "booking", got.Automaton)
	assert.Equal(t, f.v1.ID, got.Version.ID)
	assert.Len(t, got.Tools, 1)

	_, err = f.server.handleAutomatonCurrent(ctx, readResource("automata://automata/missing/current"))
	require.Error(t, err)
	_, err = f.server.handleAutomatonCurrent(ctx, readResource("automata://automata/booking/history"))
	require.Error(t, err)
}

func TestHandleAutomatonHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uri := "automata://automata/" + f.automaton.ID.String() + "/history"
	contents, err := f.server.handleAutomatonHistory(ctx, readResource(uri))
	require.NoError(t, err)
	var got struct {
		Automaton string           `json:"automaton"`
		Changes   []map[string]any `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &got))
	assert.Equal(t, "booking", got.Automaton)
	require.Len(t, got.Changes, 4)
	assert.Equal(t, "test_add", got.Changes[3]["change_type"])
}
