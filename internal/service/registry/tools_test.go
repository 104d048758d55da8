package registry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

func TestDeclareTool(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	a := mustAutomaton(t, svc, "booking-flow", "booking")

	req := model.DeclareToolRequest{
		AutomatonID: a.ID,
		Name:        "check_availability",
		Description: "Find open slots",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {"date": {"type": "string"}}}`),
		Required:    true,
	}
	tool, err := svc.DeclareTool(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(tool.OutputSchema), "empty schema defaults to an empty object")

	t.Run("identical re-declaration records nothing", func(t *testing.T) {
		// Same schema, different formatting and key order.
		same := req
		same.InputSchema = json.RawMessage(`{"properties":{"date":{"type":"string"}},"type":"object"}`)
		again, err := svc.DeclareTool(ctx, same)
		require.NoError(t, err)
		assert.Equal(t, tool.ID, again.ID)
		assert.Equal(t, tool.UpdatedAt, again.UpdatedAt)
	})

	t.Run("modification", func(t *testing.T) {
		changed := req
		changed.Required = false
		updated, err := svc.DeclareTool(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, tool.ID, updated.ID)
		assert.False(t, updated.Required)
		assert.Equal(t, tool.CreatedAt, updated.CreatedAt)
	})

	t.Run("schema must be an object", func(t *testing.T) {
		bad := req
		bad.InputSchema = json.RawMessage(`["date"]`)
		_, err := svc.DeclareTool(ctx, bad)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		bad.InputSchema = json.RawMessage(`{"type":`)
		_, err = svc.DeclareTool(ctx, bad)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	_, err = svc.DeclareTool(ctx, model.DeclareToolRequest{AutomatonID: a.ID, Name: "create_booking", Required: true})
	require.NoError(t, err)

	all, err := svc.ListTools(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "check_availability", all[0].Name)
	assert.Equal(t, "create_booking", all[1].Name)

	required, err := svc.ListTools(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, required, 1)
	assert.Equal(t, "create_booking", required[0].Name)

	require.NoError(t, svc.RemoveTool(ctx, a.ID, "create_booking", "ops"))
	require.NoError(t, svc.RemoveTool(ctx, a.ID, "create_booking", "ops"), "removing an absent tool is a no-op")

	assert.Equal(t, []model.ChangeType{
		model.ChangeAutomatonCreate,
		model.ChangeToolAdd,
		model.ChangeToolModify,
		model.ChangeToolAdd,
		model.ChangeToolRemove,
	}, changeTypes(t, svc, a.ID))
}
