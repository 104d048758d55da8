// Package model defines the domain types of the automaton registry.
//
// Types map one-to-one onto the registry tables. IDs are uuid.UUID, optional
// references are pointers, and scenario/schema payloads are kept as raw JSON
// so the registry never guesses their shape.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Automaton is a named conversational unit bound to one domain.
type Automaton struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AutomatonFilter narrows ListAutomata. Zero values mean "any".
type AutomatonFilter struct {
	Domain     string
	Tag        string
	ActiveOnly bool
}
