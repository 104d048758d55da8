package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

func TestValidateIdentifier_Valid(t *testing.T) {
	valid := []string{
		"booking-flow",
		"calendar_check",
		"bookings/create",
		"mcp:professionals.search",
		"A1",
		strings.Repeat("a", model.MaxNameLen),
	}
	for _, s := range valid {
		require.NoError(t, model.ValidateIdentifier("name", s), "expected valid: %q", s)
	}
}

func TestValidateIdentifier_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"-leading-dash",
		"has space",
		"semi;colon",
		"tab\tname",
		strings.Repeat("a", model.MaxNameLen+1),
	}
	for _, s := range invalid {
		err := model.ValidateIdentifier("name", s)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "expected invalid: %q", s)
	}
}

func TestValidateTag(t *testing.T) {
	require.NoError(t, model.ValidateTag("scheduling"))
	require.NoError(t, model.ValidateTag("tier-1_beta"))
	assert.Error(t, model.ValidateTag(""))
	assert.Error(t, model.ValidateTag("Upper"))
	assert.Error(t, model.ValidateTag("1st"))
	assert.Error(t, model.ValidateTag("a.b"))
	assert.Error(t, model.ValidateTag(strings.Repeat("a", model.MaxTagLen+1)))
}

func TestValidateText(t *testing.T) {
	require.NoError(t, model.ValidateText("prompt", "Greet and ask for date\n\tthen confirm", model.MaxPromptLen, true))
	require.NoError(t, model.ValidateText("description", "", model.MaxDescriptionLen, false))

	assert.ErrorIs(t, model.ValidateText("prompt", "   \n", model.MaxPromptLen, true), apperrors.ErrValidation)
	assert.ErrorIs(t, model.ValidateText("prompt", "bell\a", model.MaxPromptLen, true), apperrors.ErrValidation)
	assert.ErrorIs(t, model.ValidateText("prompt", "abcdef", 5, true), apperrors.ErrValidation)
	assert.ErrorIs(t, model.ValidateText("prompt", string([]byte{0xff, 0xfe}), 10, true), apperrors.ErrValidation)
}

func TestNormalizeActor(t *testing.T) {
	actor, err := model.NormalizeActor("  ")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultActor, actor)

	actor, err = model.NormalizeActor(" ci-pipeline ")
	require.NoError(t, err)
	assert.Equal(t, "ci-pipeline", actor)

	_, err = model.NormalizeActor(strings.Repeat("x", model.MaxActorLen+1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestValidateJSON(t *testing.T) {
	require.NoError(t, model.ValidateJSON("scenario", json.RawMessage(`{"turns":["hi"]}`), true))
	require.NoError(t, model.ValidateJSON("expected_result", nil, false))
	assert.ErrorIs(t, model.ValidateJSON("scenario", nil, true), apperrors.ErrValidation)
	assert.ErrorIs(t, model.ValidateJSON("scenario", json.RawMessage(`{"turns":`), true), apperrors.ErrValidation)
}

func TestNormalizeSchema(t *testing.T) {
	got, err := model.NormalizeSchema("input_schema", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	got, err = model.NormalizeSchema("input_schema", json.RawMessage(`null`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	got, err = model.NormalizeSchema("input_schema", json.RawMessage(`{ "type": "object", "properties": {} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"properties":{},"type":"object"}`, string(got))

	_, err = model.NormalizeSchema("input_schema", json.RawMessage(`["not","an","object"]`))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCanonicalJSON(t *testing.T) {
	a := json.RawMessage(`{"b": 1, "a": [1, 2, {"d": true, "c": null}]}`)
	b := json.RawMessage(`{"a":[1,2,{"c":null,"d":true}],"b":1.0}`)
	assert.True(t, model.JSONEqual(a, b))
	assert.Equal(t, `{"a":[1,2,{"c":null,"d":true}],"b":1}`, string(model.CanonicalJSON(a)))
	assert.False(t, model.JSONEqual(a, json.RawMessage(`{"b":2}`)))

	invalid := json.RawMessage(`{oops`)
	assert.Equal(t, invalid, model.CanonicalJSON(invalid))
}

func TestToolSameContract(t *testing.T) {
	a := model.Tool{Name: "calendar_check", Required: true,
		InputSchema: json.RawMessage(`{"type":"object"}`), OutputSchema: json.RawMessage(`{}`)}
	b := a
	b.InputSchema = json.RawMessage(`{ "type" : "object" }`)
	assert.True(t, a.SameContract(b))

	b.Required = false
	assert.False(t, a.SameContract(b))
}

func TestEnums(t *testing.T) {
	for _, tt := range []model.TestType{model.TestTypeUnit, model.TestTypeIntegration, model.TestTypeE2E, model.TestTypePerformance} {
		assert.True(t, tt.Valid(), tt)
	}
	assert.False(t, model.TestType("smoke").Valid())

	for _, s := range []model.TestStatus{model.TestStatusPassed, model.TestStatusFailed, model.TestStatusError, model.TestStatusSkipped} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, model.TestStatus("flaky").Valid())
}
