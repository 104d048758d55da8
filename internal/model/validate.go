package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashita-ai/automata/internal/apperrors"
)

// Field length limits. They keep a single caller from filling TEXT columns
// with unbounded input.
const (
	MaxNameLen        = 128
	MaxTestNameLen    = 200
	MaxDescriptionLen = 4 * 1024
	MaxPromptLen      = 256 * 1024
	MaxTagLen         = 64
	MaxActorLen       = 255
	MaxPayloadLen     = 1024 * 1024
)

// DefaultActor is recorded when a mutation names no actor.
const DefaultActor = "system"

// ValidateIdentifier checks automaton and tool names: 1-128 ASCII
// characters, alphanumeric plus '.', '-', '_', '/' and ':', starting with a
// letter or digit.
func ValidateIdentifier(field, s string) error {
	if s == "" {
		return apperrors.Invalid(field, "is required")
	}
	if len(s) > MaxNameLen {
		return apperrors.Invalid(field, fmt.Sprintf("must be at most %d characters", MaxNameLen))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if i == 0 && !alnum {
			return apperrors.Invalid(field, "must start with a letter or digit")
		}
		if !alnum && c != '.' && c != '-' && c != '_' && c != '/' && c != ':' {
			return apperrors.Invalid(field, fmt.Sprintf("contains invalid character at position %d: %q", i, c))
		}
	}
	return nil
}

// ValidateTag checks that a tag starts with a lowercase letter and contains
// only lowercase alphanumerics, hyphens and underscores.
func ValidateTag(tag string) error {
	if tag == "" {
		return apperrors.Invalid("tag", "must not be empty")
	}
	if len(tag) > MaxTagLen {
		return apperrors.Invalid("tag", fmt.Sprintf("must be at most %d characters", MaxTagLen))
	}
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if i == 0 {
			if c < 'a' || c > 'z' {
				return apperrors.Invalid("tag", fmt.Sprintf("must start with a lowercase letter, got %q", c))
			}
			continue
		}
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return apperrors.Invalid("tag", fmt.Sprintf("contains invalid character at position %d: %q", i, c))
		}
	}
	return nil
}

// ValidateText checks free text: valid UTF-8, no control characters other
// than newline and tab, at most max bytes. required rejects blank input.
func ValidateText(field, s string, max int, required bool) error {
	if required && strings.TrimSpace(s) == "" {
		return apperrors.Invalid(field, "must not be empty")
	}
	if len(s) > max {
		return apperrors.Invalid(field, fmt.Sprintf("exceeds maximum length of %d bytes", max))
	}
	if !utf8.ValidString(s) {
		return apperrors.Invalid(field, "must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return apperrors.Invalid(field, "contains control characters")
		}
	}
	return nil
}

// NormalizeActor trims actor and substitutes DefaultActor when empty.
func NormalizeActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return DefaultActor, nil
	}
	if err := ValidateText("actor", actor, MaxActorLen, true); err != nil {
		return "", err
	}
	return actor, nil
}

// ValidateJSON checks that raw is well-formed JSON no larger than
// MaxPayloadLen. Empty input is accepted only when required is false.
func ValidateJSON(field string, raw json.RawMessage, required bool) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		if required {
			return apperrors.Invalid(field, "is required")
		}
		return nil
	}
	if len(raw) > MaxPayloadLen {
		return apperrors.Invalid(field, fmt.Sprintf("exceeds maximum size of %d bytes", MaxPayloadLen))
	}
	if !json.Valid(raw) {
		return apperrors.Invalid(field, "must be valid JSON")
	}
	return nil
}

// NormalizeSchema validates a tool schema. Empty input becomes {}; anything
// else must be a JSON object.
func NormalizeSchema(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if err := ValidateJSON(field, trimmed, true); err != nil {
		return nil, err
	}
	if trimmed[0] != '{' {
		return nil, apperrors.Invalid(field, "must be a JSON object")
	}
	return CanonicalJSON(trimmed), nil
}

// CanonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Backends such as Postgres jsonb rewrite stored JSON, so
// anything that is compared or hashed goes through this first. Invalid or
// empty input is returned unchanged.
func CanonicalJSON(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// JSONEqual reports whether a and b encode the same JSON value.
func JSONEqual(a, b json.RawMessage) bool {
	return bytes.Equal(CanonicalJSON(a), CanonicalJSON(b))
}
