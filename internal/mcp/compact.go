package mcp

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
)

const (
	maxCompactPrompt  = 200
	maxCompactMessage = 300
)

// compactVersion returns a minimal representation of a version for MCP
// list responses. The full prompt is only returned by
// automata_get_current.
func compactVersion(v model.Version) map[string]any {
	m := map[string]any{
		"id":             v.ID,
		"version_number": v.VersionNumber,
		"is_current":     v.IsCurrent,
		"prompt_hash":    v.PromptHash,
		"prompt_preview": truncate(v.SystemPrompt, maxCompactPrompt),
		"created_by":     v.CreatedBy,
		"created_at":     v.CreatedAt,
	}
	if v.Description != "" {
		m["description"] = v.Description
	}
	return m
}

// compactResult drops the actual result payload, which can be large, and
// truncates the message.
func compactResult(r model.TestResult) map[string]any {
	m := map[string]any{
		"id":                r.ID,
		"test_id":           r.TestID,
		"status":            r.Status,
		"execution_time_ms": r.ExecutionTime.Milliseconds(),
		"executed_at":       r.ExecutedAt,
	}
	if r.VersionID != nil {
		m["version_id"] = r.VersionID
	}
	if r.ErrorMessage != "" {
		m["message"] = truncate(r.ErrorMessage, maxCompactMessage)
	}
	return m
}

// compactChange drops the snapshots and keeps what a reader scans for.
func compactChange(c model.Change) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"change_type": c.ChangeType,
		"description": c.Description,
		"actor":       c.Actor,
		"created_at":  c.CreatedAt,
	}
}

// generateSuiteSummary creates a one or two sentence synthesis of a suite
// run.
func generateSuiteSummary(r registry.SuiteReport) string {
	total := len(r.Results)
	if total == 0 {
		return fmt.Sprintf("Version %d has no tests to run.", r.Version.VersionNumber)
	}
	passed := r.Counts[model.TestStatusPassed]
	executed := total - r.Counts[model.TestStatusSkipped]
	parts := []string{fmt.Sprintf("Version %d passed %d of %d executed test(s) (%.0f%%).",
		r.Version.VersionNumber, passed, executed, r.PassRate*100)}

	var extra []string
	if n := r.Counts[model.TestStatusFailed]; n > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", n))
	}
	if n := r.Counts[model.TestStatusError]; n > 0 {
		extra = append(extra, fmt.Sprintf("%d errored", n))
	}
	if n := r.Counts[model.TestStatusSkipped]; n > 0 {
		extra = append(extra, fmt.Sprintf("%d skipped", n))
	}
	if len(extra) > 0 {
		parts = append(parts, strings.Join(extra, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
