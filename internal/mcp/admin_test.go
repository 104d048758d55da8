package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/model"
)

func TestHandleRemoveTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	args := map[string]any{"automaton": "booking", "name": "create_booking", "actor": "bob"}
	result, err := f.server.handleRemoveTool(ctx, toolRequest("automata_remove_tool", args))
	require.NoError(t, err)
	var got struct {
		Removed string `json:"removed"`
	}
	decodeResult(t, result, &got)
	assert.Equal(t, "create_booking", got.Removed)

	tools, err := f.svc.ListTools(ctx, f.automaton.ID, false)
	require.NoError(t, err)
	assert.Empty(t, tools)

	// Removing it again is a no-op and records nothing new.
	result, err = f.server.handleRemoveTool(ctx, toolRequest("automata_remove_tool", args))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	removed, err := f.svc.History(ctx, model.ChangeFilter{AutomatonID: f.automaton.ID, ChangeType: model.ChangeToolRemove})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "bob", removed[0].Actor)

	result, err = f.server.handleRemoveTool(ctx, toolRequest("automata_remove_tool", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "invalid:"))
}

func TestHandleDefineTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	args := map[string]any{
		"automaton":       "booking",
		"name":            "rejects past dates",
		"type":            "unit",
		"scenario":        map[string]any{"input": "book yesterday"},
		"expected_result": map[string]any{"booked": false},
	}
	result, err := f.server.handleDefineTest(ctx, toolRequest("automata_define_test", args))
	require.NoError(t, err)
	var tc model.Test
	decodeResult(t, result, &tc)
	assert.Equal(t, "rejects past dates", tc.Name)
	assert.Equal(t, model.TestTypeUnit, tc.Type)
	assert.True(t, tc.Active)
	assert.JSONEq(t, `{"input":"book yesterday"}`, string(tc.Scenario))

	tests := []struct {
		name   string
		mutate func(map[string]any)
		prefix string
	}{
		{"duplicate name", func(map[string]any) {}, "conflict:"},
		{"missing scenario", func(a map[string]any) { a["name"] = "other"; delete(a, "scenario") }, "invalid:"},
		{"unknown type", func(a map[string]any) { a["name"] = "other"; a["type"] = "smoke" }, "invalid:"},
		{"unknown automaton", func(a map[string]any) { a["automaton"] = "nope" }, "not_found:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := map[string]any{}
			for k, v := range args {
				a[k] = v
			}
			tt.mutate(a)
			result, err := f.server.handleDefineTest(ctx, toolRequest("automata_define_test", a))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(parseToolText(t, result), tt.prefix), parseToolText(t, result))
		})
	}
}

func TestHandleSetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleSetActive(ctx, toolRequest("automata_set_active", map[string]any{
		"automaton": "booking", "active": false,
	}))
	require.NoError(t, err)
	var a model.Automaton
	decodeResult(t, result, &a)
	assert.False(t, a.Active)

	active, err := f.svc.ListAutomata(ctx, model.AutomatonFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Contains(t, changeTypesOf(t, f), model.ChangeAutomatonDeactivate)

	result, err = f.server.handleSetActive(ctx, toolRequest("automata_set_active", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid active: is required")
}

func TestHandleDeleteAutomaton(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RunTest(ctx, f.test.ID, f.v1.ID)
	require.NoError(t, err)

	result, err := f.server.handleDeleteAutomaton(ctx, toolRequest("automata_delete_automaton", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), "invalid confirm")
	_, err = f.svc.GetAutomaton(ctx, f.automaton.ID)
	require.NoError(t, err, "unconfirmed delete leaves the automaton")

	result, err = f.server.handleDeleteAutomaton(ctx, toolRequest("automata_delete_automaton", map[string]any{
		"automaton": "booking", "confirm": true,
	}))
	require.NoError(t, err)
	var got struct {
		Deleted string `json:"deleted"`
	}
	decodeResult(t, result, &got)
	assert.Equal(t, "booking", got.Deleted)

	result, err = f.server.handleGetCurrent(ctx, toolRequest("automata_get_current", map[string]any{"automaton": "booking"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parseToolText(t, result), "not_found:"))

	result, err = f.server.handleListResults(ctx, toolRequest("automata_list_results", map[string]any{"test_id": f.test.ID.String()}))
	require.NoError(t, err)
	var listed struct {
		Total int `json:"total"`
	}
	decodeResult(t, result, &listed)
	assert.Equal(t, 1, listed.Total, "results outlive the automaton")
}

func changeTypesOf(t *testing.T, f fixture) []model.ChangeType {
	t.Helper()
	changes, err := f.svc.History(context.Background(), model.ChangeFilter{AutomatonID: f.automaton.ID})
	require.NoError(t, err)
	out := make([]model.ChangeType, len(changes))
	for i, c := range changes {
		out[i] = c.ChangeType
	}
	return out
}
