// Package manifest imports automata from a YAML manifest.
//
// A manifest declares the desired state of each automaton: its descriptive
// fields, its system prompt, the tools it needs and its tests. Apply
// converges the registry onto that state through the regular registry
// operations, so every change lands in the ledger. Applying the same
// manifest twice changes nothing.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

// Manifest is the root of a manifest file.
type Manifest struct {
	Automata []Automaton `yaml:"automata"`
}

// Automaton is the desired state of one automaton.
type Automaton struct {
	Name              string         `yaml:"name"`
	Domain            string         `yaml:"domain"`
	Description       string         `yaml:"description"`
	Tags              []string       `yaml:"tags"`
	Metadata          map[string]any `yaml:"metadata"`
	Prompt            string         `yaml:"prompt"`
	PromptDescription string         `yaml:"prompt_description"`
	Tools             []Tool         `yaml:"tools"`
	Tests             []Test         `yaml:"tests"`
}

// Tool is a tool contract. Schemas are written as YAML mappings.
type Tool struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	Required     bool           `yaml:"required"`
}

// Test is a test definition. Scenario and Expected may be any YAML value.
type Test struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Scenario    any    `yaml:"scenario"`
	Expected    any    `yaml:"expected"`
	Active      *bool  `yaml:"active"`
}

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(r io.Reader) (Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, errors.New("manifest: empty document")
		}
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(bytes.NewReader(data))
}

// Validate checks the structural rules Parse cannot express: required
// fields and unique names. Field contents are validated by the registry.
func (m Manifest) Validate() error {
	if len(m.Automata) == 0 {
		return errors.New("manifest: no automata declared")
	}
	var errs []error
	names := map[string]bool{}
	for i, a := range m.Automata {
		where := fmt.Sprintf("automata[%d]", i)
		if a.Name != "" {
			where = a.Name
		}
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("manifest: %s: name is required", where))
		} else if names[a.Name] {
			errs = append(errs, fmt.Errorf("manifest: %s: declared more than once", where))
		}
		names[a.Name] = true
		if strings.TrimSpace(a.Domain) == "" {
			errs = append(errs, fmt.Errorf("manifest: %s: domain is required", where))
		}

		tools := map[string]bool{}
		for _, t := range a.Tools {
			if tools[t.Name] {
				errs = append(errs, fmt.Errorf("manifest: %s: tool %q declared more than once", where, t.Name))
			}
			tools[t.Name] = true
		}
		tests := map[string]bool{}
		for _, t := range a.Tests {
			if tests[t.Name] {
				errs = append(errs, fmt.Errorf("manifest: %s: test %q declared more than once", where, t.Name))
			}
			tests[t.Name] = true
			if t.Scenario == nil {
				errs = append(errs, fmt.Errorf("manifest: %s: test %q has no scenario", where, t.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// Registry is the subset of the registry service Apply drives.
type Registry interface {
	GetAutomatonByName(ctx context.Context, name string) (model.Automaton, error)
	CreateAutomaton(ctx context.Context, req model.CreateAutomatonRequest) (model.Automaton, error)
	UpdateAutomaton(ctx context.Context, req model.UpdateAutomatonRequest) (model.Automaton, error)
	CreateVersion(ctx context.Context, req model.CreateVersionRequest) (model.Version, error)
	Promote(ctx context.Context, automatonID, versionID uuid.UUID, actor string) (model.Version, error)
	DeclareTool(ctx context.Context, req model.DeclareToolRequest) (model.Tool, error)
	ListTests(ctx context.Context, automatonID uuid.UUID, activeOnly bool) ([]model.Test, error)
	DefineTest(ctx context.Context, req model.DefineTestRequest) (model.Test, error)
	SetTestActive(ctx context.Context, testID uuid.UUID, active bool, actor string) (model.Test, error)
}

// Summary reports what Apply did for one automaton.
type Summary struct {
	Name        string    `json:"name"`
	AutomatonID uuid.UUID `json:"automaton_id"`
	Created     bool      `json:"created"`
	// Version is the current version number after apply, zero when the
	// manifest declares no prompt.
	Version      int  `json:"version"`
	Promoted     bool `json:"promoted"`
	Tools        int  `json:"tools"`
	TestsAdded   int  `json:"tests_added"`
	TestsSkipped int  `json:"tests_skipped"`
}

// Apply converges the registry onto m, automaton by automaton in manifest
// order. Tests that already exist by name are left untouched. It stops at
// the first error and returns the summaries of the automata applied so far.
func Apply(ctx context.Context, reg Registry, m Manifest, actor string) ([]Summary, error) {
	out := make([]Summary, 0, len(m.Automata))
	for _, a := range m.Automata {
		s, err := applyOne(ctx, reg, a, actor)
		if err != nil {
			return out, fmt.Errorf("manifest: apply %s: %w", a.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func applyOne(ctx context.Context, reg Registry, def Automaton, actor string) (Summary, error) {
	s := Summary{Name: def.Name}

	a, err := reg.GetAutomatonByName(ctx, def.Name)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		a, err = reg.CreateAutomaton(ctx, model.CreateAutomatonRequest{
			Name:        def.Name,
			Domain:      def.Domain,
			Description: def.Description,
			Tags:        def.Tags,
			Metadata:    def.Metadata,
			Actor:       actor,
		})
		if err != nil {
			return s, err
		}
		s.Created = true
	case err != nil:
		return s, err
	default:
		tags := def.Tags
		if tags == nil {
			tags = []string{}
		}
		meta := def.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		a, err = reg.UpdateAutomaton(ctx, model.UpdateAutomatonRequest{
			ID:          a.ID,
			Domain:      &def.Domain,
			Description: &def.Description,
			Tags:        &tags,
			Metadata:    &meta,
			Actor:       actor,
		})
		if err != nil {
			return s, err
		}
	}
	s.AutomatonID = a.ID

	if def.Prompt != "" {
		v, err := reg.CreateVersion(ctx, model.CreateVersionRequest{
			AutomatonID: a.ID,
			Prompt:      def.Prompt,
			Description: def.PromptDescription,
			Actor:       actor,
		})
		if err != nil {
			return s, err
		}
		if !v.IsCurrent {
			if v, err = reg.Promote(ctx, a.ID, v.ID, actor); err != nil {
				return s, err
			}
			s.Promoted = true
		}
		s.Version = v.VersionNumber
	}

	for _, t := range def.Tools {
		in, err := schemaJSON(t.InputSchema)
		if err != nil {
			return s, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		outSchema, err := schemaJSON(t.OutputSchema)
		if err != nil {
			return s, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		if _, err := reg.DeclareTool(ctx, model.DeclareToolRequest{
			AutomatonID:  a.ID,
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  in,
			OutputSchema: outSchema,
			Required:     t.Required,
			Actor:        actor,
		}); err != nil {
			return s, err
		}
		s.Tools++
	}

	existing, err := reg.ListTests(ctx, a.ID, false)
	if err != nil {
		return s, err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Name] = true
	}
	for _, t := range def.Tests {
		if have[t.Name] {
			s.TestsSkipped++
			continue
		}
		scenario, err := valueJSON(t.Scenario)
		if err != nil {
			return s, fmt.Errorf("test %s: scenario: %w", t.Name, err)
		}
		expected, err := valueJSON(t.Expected)
		if err != nil {
			return s, fmt.Errorf("test %s: expected: %w", t.Name, err)
		}
		typ := model.TestType(t.Type)
		if typ == "" {
			typ = model.TestTypeIntegration
		}
		defined, err := reg.DefineTest(ctx, model.DefineTestRequest{
			AutomatonID:    a.ID,
			Name:           t.Name,
			Description:    t.Description,
			Type:           typ,
			Scenario:       scenario,
			ExpectedResult: expected,
			Actor:          actor,
		})
		if err != nil {
			return s, err
		}
		if t.Active != nil && !*t.Active {
			if _, err := reg.SetTestActive(ctx, defined.ID, false, actor); err != nil {
				return s, err
			}
		}
		s.TestsAdded++
	}
	return s, nil
}

func schemaJSON(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// valueJSON encodes a decoded YAML value. yaml.v3 decodes mappings with
// string keys to map[string]any, which encoding/json accepts.
func valueJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
