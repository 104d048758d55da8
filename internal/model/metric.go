package model

import (
	"time"

	"github.com/google/uuid"
)

// Metric is a point-in-time evaluation measurement. Write-once.
// MetricType is open vocabulary (accuracy, latency, error_rate, ...).
type Metric struct {
	ID             uuid.UUID      `json:"id"`
	AutomatonID    uuid.UUID      `json:"automaton_id"`
	VersionID      *uuid.UUID     `json:"version_id"`
	MetricType     string         `json:"metric_type"`
	Value          float64        `json:"value"`
	Unit           string         `json:"unit,omitempty"`
	EvaluationDate time.Time      `json:"evaluation_date"`
	SampleSize     int            `json:"sample_size"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DateRange bounds evaluation dates. Both ends are inclusive; a nil end is
// unbounded, so the zero DateRange means all time.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// MetricFilter selects metrics for listing or aggregation.
type MetricFilter struct {
	AutomatonID uuid.UUID
	VersionID   *uuid.UUID
	MetricType  string
	Range       DateRange
	Limit       int
}

// MetricAggregate summarizes matching metric values. Count is zero (and the
// other fields are zero) when nothing matched.
type MetricAggregate struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// VersionAggregate is a MetricAggregate for one version. VersionID is nil
// for metrics recorded without a version (or whose version was deleted).
type VersionAggregate struct {
	VersionID *uuid.UUID `json:"version_id"`
	MetricAggregate
}
