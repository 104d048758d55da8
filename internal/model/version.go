package model

import (
	"time"

	"github.com/google/uuid"
)

// Version is an immutable snapshot of an automaton's system prompt.
// Only IsCurrent ever changes after insertion.
type Version struct {
	ID            uuid.UUID `json:"id"`
	AutomatonID   uuid.UUID `json:"automaton_id"`
	VersionNumber int       `json:"version_number"`
	SystemPrompt  string    `json:"system_prompt"`
	PromptHash    string    `json:"prompt_hash"`
	Description   string    `json:"description,omitempty"`
	IsCurrent     bool      `json:"is_current"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// VersionRef is the compact form of a Version recorded in change snapshots.
type VersionRef struct {
	ID            uuid.UUID `json:"id"`
	VersionNumber int       `json:"version_number"`
	PromptHash    string    `json:"prompt_hash"`
}

// Ref returns the snapshot reference for v.
func (v Version) Ref() VersionRef {
	return VersionRef{ID: v.ID, VersionNumber: v.VersionNumber, PromptHash: v.PromptHash}
}
