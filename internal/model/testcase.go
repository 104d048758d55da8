package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TestType classifies a test scenario.
type TestType string

const (
	TestTypeUnit        TestType = "unit"
	TestTypeIntegration TestType = "integration"
	TestTypeE2E         TestType = "e2e"
	TestTypePerformance TestType = "performance"
)

// Valid reports whether t is one of the known test types.
func (t TestType) Valid() bool {
	switch t {
	case TestTypeUnit, TestTypeIntegration, TestTypeE2E, TestTypePerformance:
		return true
	}
	return false
}

// Test is a reusable scenario for an automaton. Scenario and ExpectedResult
// are opaque JSON; their shape is the executor's business.
type Test struct {
	ID             uuid.UUID       `json:"id"`
	AutomatonID    uuid.UUID       `json:"automaton_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Type           TestType        `json:"type"`
	Scenario       json.RawMessage `json:"scenario"`
	ExpectedResult json.RawMessage `json:"expected_result,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TestStatus is the outcome of one test execution.
type TestStatus string

const (
	TestStatusPassed  TestStatus = "passed"
	TestStatusFailed  TestStatus = "failed"
	TestStatusError   TestStatus = "error"
	TestStatusSkipped TestStatus = "skipped"
)

// Valid reports whether s is one of the known statuses.
func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusPassed, TestStatusFailed, TestStatusError, TestStatusSkipped:
		return true
	}
	return false
}

// TestResult is one execution of a Test against a Version. Write-once.
//
// TestID and AutomatonID are historical identifiers: the row outlives both
// the test and the automaton. VersionID is cleared when the version is
// deleted.
type TestResult struct {
	ID            uuid.UUID       `json:"id"`
	TestID        uuid.UUID       `json:"test_id"`
	AutomatonID   uuid.UUID       `json:"automaton_id"`
	VersionID     *uuid.UUID      `json:"version_id"`
	Status        TestStatus      `json:"status"`
	ActualResult  json.RawMessage `json:"actual_result,omitempty"`
	ExecutionTime time.Duration   `json:"execution_time_ns"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

// ResultFilter selects test results. Exactly one of TestID and AutomatonID
// must be set.
type ResultFilter struct {
	TestID      *uuid.UUID
	AutomatonID *uuid.UUID
	Status      TestStatus
	Since       *time.Time
}

// ResultCursor is the keyset position after which the next page starts.
// Results are ordered by (ExecutedAt, ID) descending.
type ResultCursor struct {
	ExecutedAt time.Time
	ID         uuid.UUID
}

// CursorOf returns the cursor positioned at r.
func CursorOf(r TestResult) ResultCursor {
	return ResultCursor{ExecutedAt: r.ExecutedAt, ID: r.ID}
}
