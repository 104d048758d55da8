package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeType names the kind of structural mutation a Change records.
type ChangeType string

const (
	ChangeAutomatonCreate     ChangeType = "automaton_create"
	ChangeAutomatonUpdate     ChangeType = "automaton_update"
	ChangeAutomatonDeactivate ChangeType = "automaton_deactivate"
	ChangeAutomatonActivate   ChangeType = "automaton_activate"
	ChangePromptUpdate        ChangeType = "prompt_update"
	ChangeVersionPromote      ChangeType = "version_promote"
	ChangeToolAdd             ChangeType = "tool_add"
	ChangeToolModify          ChangeType = "tool_modify"
	ChangeToolRemove          ChangeType = "tool_remove"
	ChangeTestAdd             ChangeType = "test_add"
	ChangeTestUpdate          ChangeType = "test_update"
	ChangeTestRemove          ChangeType = "test_remove"
)

// Change is an append-only audit entry. ContentHash covers every other
// field so tampering is detectable.
type Change struct {
	ID          uuid.UUID       `json:"id"`
	AutomatonID uuid.UUID       `json:"automaton_id"`
	ChangeType  ChangeType      `json:"change_type"`
	Description string          `json:"description"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	Actor       string          `json:"actor"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ChangeFilter narrows a history query. Results are chronological.
type ChangeFilter struct {
	AutomatonID uuid.UUID
	ChangeType  ChangeType
	Since       *time.Time
	Until       *time.Time
	Limit       int
}
