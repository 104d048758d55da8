package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tool is a capability contract an automaton declares it needs.
// (AutomatonID, Name) is unique.
type Tool struct {
	ID           uuid.UUID       `json:"id"`
	AutomatonID  uuid.UUID       `json:"automaton_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`
	Required     bool            `json:"required"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SameContract reports whether t and o declare the same contract, ignoring
// identity and timestamps. Schemas are compared after canonicalization.
func (t Tool) SameContract(o Tool) bool {
	return t.Name == o.Name &&
		t.Description == o.Description &&
		t.Required == o.Required &&
		bytes.Equal(CanonicalJSON(t.InputSchema), CanonicalJSON(o.InputSchema)) &&
		bytes.Equal(CanonicalJSON(t.OutputSchema), CanonicalJSON(o.OutputSchema))
}
