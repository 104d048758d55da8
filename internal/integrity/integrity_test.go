package integrity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/model"
)

func TestComputePromptHash_Deterministic(t *testing.T) {
	h1 := ComputePromptHash("Greet and ask for date")
	h2 := ComputePromptHash("Greet and ask for date")
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q != %q", h1, h2)
	}
	if !strings.HasPrefix(h1, "v1:") {
		t.Fatalf("expected v1: prefix, got %q", h1)
	}
	if len(h1) != len("v1:")+64 {
		t.Fatalf("expected 64-char hex SHA-256 after prefix, got %d chars", len(h1)-3)
	}
}

func TestComputePromptHash_DifferentInputs(t *testing.T) {
	a := ComputePromptHash("Greet and ask for date")
	b := ComputePromptHash("Greet, ask for date and time")
	if a == b {
		t.Fatal("different prompts should produce different hashes")
	}
	if ComputePromptHash("hello") == ComputePromptHash("hello ") {
		t.Fatal("trailing whitespace is significant")
	}
}

func TestVerifyPromptHash(t *testing.T) {
	prompt := "You book appointments."
	stored := ComputePromptHash(prompt)
	if !VerifyPromptHash(stored, prompt) {
		t.Fatal("verification should succeed for matching prompt")
	}
	if VerifyPromptHash(stored, prompt+"!") {
		t.Fatal("verification should fail for a different prompt")
	}
	if VerifyPromptHash(strings.TrimPrefix(stored, "v1:"), prompt) {
		t.Fatal("unversioned hashes are not accepted")
	}
}

func sampleChange() model.Change {
	return model.Change{
		ID:          uuid.MustParse("11111111-1111-7111-8111-111111111111"),
		AutomatonID: uuid.MustParse("22222222-2222-7222-8222-222222222222"),
		ChangeType:  model.ChangePromptUpdate,
		Description: "created version 2",
		Before:      json.RawMessage(`{"version_number":1}`),
		After:       json.RawMessage(`{"version_number":2,"prompt_hash":"v1:abc"}`),
		Actor:       "ci",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 123000, time.UTC),
	}
}

func TestChangeHash_RoundTrip(t *testing.T) {
	c := sampleChange()
	c.ContentHash = ComputeChangeHash(c)
	if !VerifyChangeHash(c) {
		t.Fatal("verification should succeed for untouched change")
	}
}

func TestChangeHash_SurvivesJSONReformatting(t *testing.T) {
	c := sampleChange()
	c.ContentHash = ComputeChangeHash(c)

	// Postgres jsonb adds spaces and reorders keys on the way out.
	c.After = json.RawMessage(`{"prompt_hash": "v1:abc", "version_number": 2}`)
	if !VerifyChangeHash(c) {
		t.Fatal("reformatted JSON should verify")
	}
}

func TestChangeHash_DetectsTampering(t *testing.T) {
	base := sampleChange()
	base.ContentHash = ComputeChangeHash(base)

	mutations := map[string]func(*model.Change){
		"description": func(c *model.Change) { c.Description = "created version 3" },
		"actor":       func(c *model.Change) { c.Actor = "mallory" },
		"after":       func(c *model.Change) { c.After = json.RawMessage(`{"version_number":3}`) },
		"before":      func(c *model.Change) { c.Before = nil },
		"type":        func(c *model.Change) { c.ChangeType = model.ChangeVersionPromote },
		"time":        func(c *model.Change) { c.CreatedAt = c.CreatedAt.Add(time.Microsecond) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			if VerifyChangeHash(c) {
				t.Fatalf("tampered %s should fail verification", name)
			}
		})
	}

	empty := sampleChange()
	if VerifyChangeHash(empty) {
		t.Fatal("a change without a stored hash never verifies")
	}
}

func TestChangeHash_FieldBoundaries(t *testing.T) {
	a := sampleChange()
	a.Description = "ab"
	a.Actor = "c"
	b := sampleChange()
	b.Description = "a"
	b.Actor = "bc"
	if ComputeChangeHash(a) == ComputeChangeHash(b) {
		t.Fatal("length-prefixed fields must not collide across boundaries")
	}
}

func TestBuildMerkleRoot(t *testing.T) {
	if got := BuildMerkleRoot(nil); got != "" {
		t.Fatalf("empty leaves: got %q, want empty", got)
	}
	if got := BuildMerkleRoot([]string{"a"}); got != "a" {
		t.Fatalf("single leaf: got %q, want %q", got, "a")
	}

	two := BuildMerkleRoot([]string{"a", "b"})
	if two != hashPair("a", "b") {
		t.Fatalf("two leaves: got %q", two)
	}

	three := BuildMerkleRoot([]string{"a", "b", "c"})
	want := hashPair(hashPair("a", "b"), hashPair("c", "c"))
	if three != want {
		t.Fatalf("three leaves: got %q, want %q", three, want)
	}

	if BuildMerkleRoot([]string{"b", "a"}) == two {
		t.Fatal("leaf order is significant")
	}
}

func TestBuildMerkleRoot_DoesNotMutateInput(t *testing.T) {
	leaves := []string{"x", "y", "z"}
	_ = BuildMerkleRoot(leaves)
	if leaves[0] != "x" || leaves[1] != "y" || leaves[2] != "z" {
		t.Fatalf("input mutated: %v", leaves)
	}
}
