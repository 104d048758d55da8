// Package ids generates and parses the opaque identifiers used for every
// registry entity.
//
// IDs are UUIDv7: 48 bits of millisecond timestamp followed by random bits,
// so they are collision resistant and sort roughly by creation time, which
// keeps btree inserts append-mostly.
package ids

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
)

// New returns a fresh identifier. It falls back to a random (v4) UUID if the
// v7 generator cannot read the clock sequence.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse parses s as an identifier for the named field. Malformed or nil IDs
// yield a ValidationError.
func Parse(field, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, apperrors.Invalid(field, "is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperrors.Invalid(field, "is not a valid id")
	}
	if id == uuid.Nil {
		return uuid.Nil, apperrors.Invalid(field, "must not be the nil id")
	}
	return id, nil
}

// ParseOptional is Parse for optional references: an empty string yields nil.
func ParseOptional(field, s string) (*uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	id, err := Parse(field, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
