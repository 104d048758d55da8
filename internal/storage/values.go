package storage

import (
	"encoding/json"

	"github.com/ashita-ai/automata/internal/model"
)

// Tags returns tags, or an empty slice for nil, so NOT NULL columns never
// receive NULL.
func Tags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Metadata returns m, or an empty map for nil.
func Metadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// JSONBytes returns raw in canonical form, or nil (SQL NULL) when raw is
// empty.
func JSONBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return model.CanonicalJSON(raw)
}

// JSONFromColumn canonicalizes a JSON column value read back from a
// backend. NULL stays nil.
func JSONFromColumn(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return model.CanonicalJSON(b)
}
