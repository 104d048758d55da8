package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CreateAutomatonRequest is the input to CreateAutomaton.
type CreateAutomatonRequest struct {
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Actor       string         `json:"actor,omitempty"`
}

// UpdateAutomatonRequest patches an automaton. Nil fields are left unchanged.
type UpdateAutomatonRequest struct {
	ID          uuid.UUID       `json:"id"`
	Domain      *string         `json:"domain,omitempty"`
	Description *string         `json:"description,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
	Actor       string          `json:"actor,omitempty"`
}

// CreateVersionRequest is the input to CreateVersion.
type CreateVersionRequest struct {
	AutomatonID uuid.UUID `json:"automaton_id"`
	Prompt      string    `json:"prompt"`
	Description string    `json:"description,omitempty"`
	Actor       string    `json:"actor,omitempty"`
}

// DeclareToolRequest is the input to DeclareTool. Empty schemas mean {}.
type DeclareToolRequest struct {
	AutomatonID  uuid.UUID       `json:"automaton_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Required     bool            `json:"required"`
	Actor        string          `json:"actor,omitempty"`
}

// DefineTestRequest is the input to DefineTest.
type DefineTestRequest struct {
	AutomatonID    uuid.UUID       `json:"automaton_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Type           TestType        `json:"type"`
	Scenario       json.RawMessage `json:"scenario"`
	ExpectedResult json.RawMessage `json:"expected_result,omitempty"`
	Actor          string          `json:"actor,omitempty"`
}

// RecordMetricRequest is the input to RecordMetric. A zero EvaluationDate
// means now.
type RecordMetricRequest struct {
	AutomatonID    uuid.UUID      `json:"automaton_id"`
	VersionID      *uuid.UUID     `json:"version_id,omitempty"`
	Type           string         `json:"metric_type"`
	Value          float64        `json:"value"`
	Unit           string         `json:"unit,omitempty"`
	SampleSize     int            `json:"sample_size"`
	EvaluationDate time.Time      `json:"evaluation_date"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RecordChangeRequest appends a free-standing entry to the change ledger.
// Before and After are marshaled to JSON; nil means no snapshot.
type RecordChangeRequest struct {
	AutomatonID uuid.UUID  `json:"automaton_id"`
	ChangeType  ChangeType `json:"change_type"`
	Description string     `json:"description"`
	Before      any        `json:"before,omitempty"`
	After       any        `json:"after,omitempty"`
	Actor       string     `json:"actor,omitempty"`
}
