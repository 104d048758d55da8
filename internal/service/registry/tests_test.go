package registry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

func TestDefineTest(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	a := mustAutomaton(t, svc, "booking-flow", "booking")

	tc := mustTest(t, svc, a.ID, "books a slot")
	assert.True(t, tc.Active)
	assert.JSONEq(t, `{"booked":true}`, string(tc.ExpectedResult))

	_, err := svc.DefineTest(ctx, model.DefineTestRequest{
		AutomatonID: a.ID,
		Name:        "books a slot",
		Type:        model.TestTypeUnit,
		Scenario:    json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Len(t, changeTypes(t, svc, a.ID), 2, "a rejected mutation leaves no ledger entry")

	bad := []model.DefineTestRequest{
		{AutomatonID: a.ID, Name: "t", Type: "smoke", Scenario: json.RawMessage(`{}`)},
		{AutomatonID: a.ID, Name: "t", Type: model.TestTypeE2E},
		{AutomatonID: a.ID, Name: "t", Type: model.TestTypeE2E, Scenario: json.RawMessage(`{"steps":`)},
		{AutomatonID: a.ID, Name: "t", Type: model.TestTypeE2E, Scenario: json.RawMessage(`{}`), ExpectedResult: json.RawMessage(`nope`)},
		{AutomatonID: a.ID, Name: " ", Type: model.TestTypeE2E, Scenario: json.RawMessage(`{}`)},
	}
	for _, req := range bad {
		_, err := svc.DefineTest(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "%+v", req)
	}

	_, err = svc.DefineTest(ctx, model.DefineTestRequest{
		AutomatonID: uuid.New(), Name: "t", Type: model.TestTypeUnit, Scenario: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTestLifecycle(t *testing.T) {
	svc := newService(t, passing)
	ctx := context.Background()
	a := mustAutomaton(t, svc, "booking-flow", "booking")
	v := mustVersion(t, svc, a.ID, "You book appointments.")
	keep := mustTest(t, svc, a.ID, "a keeps running")
	drop := mustTest(t, svc, a.ID, "b gets removed")

	off, err := svc.SetTestActive(ctx, keep.ID, false, "ops")
	require.NoError(t, err)
	assert.False(t, off.Active)

	active, err := svc.ListTests(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, drop.ID, active[0].ID)

	r, err := svc.RunTest(ctx, drop.ID, v.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveTest(ctx, drop.ID, "ops"))

	_, err = svc.GetTest(ctx, drop.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.RemoveTest(ctx, drop.ID, "ops"), apperrors.ErrNotFound)

	results := collect(t, svc, model.ResultFilter{TestID: &drop.ID})
	require.Len(t, results, 1, "results outlive their test")
	assert.Equal(t, r.ID, results[0].ID)
	require.NotNil(t, results[0].VersionID)
	assert.Equal(t, v.ID, *results[0].VersionID)

	assert.Equal(t, []model.ChangeType{
		model.ChangeAutomatonCreate,
		model.ChangePromptUpdate,
		model.ChangeTestAdd,
		model.ChangeTestAdd,
		model.ChangeTestUpdate,
		model.ChangeTestRemove,
	}, changeTypes(t, svc, a.ID))
}
