package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

// PassRateMetric is the metric type RunSuite records.
const PassRateMetric = "pass_rate"

// SuiteRequest selects the tests and version for RunSuite. A nil VersionID
// runs against the automaton's current version.
type SuiteRequest struct {
	AutomatonID    uuid.UUID
	VersionID      *uuid.UUID
	RecordPassRate bool
}

// SuiteReport summarizes a suite run. Results are ordered by test name.
// PassRate is passed / (passed + failed + error), zero when nothing
// executed.
type SuiteReport struct {
	AutomatonID uuid.UUID                `json:"automaton_id"`
	Version     model.VersionRef         `json:"version"`
	Results     []model.TestResult       `json:"results"`
	Counts      map[model.TestStatus]int `json:"counts"`
	PassRate    float64                  `json:"pass_rate"`
	Metric      *model.Metric            `json:"metric,omitempty"`
}

// RunSuite runs every test of an automaton against one version, with at
// most the configured number of tests in flight. It stops at the first
// storage failure.
func (s *Service) RunSuite(ctx context.Context, req SuiteRequest) (report SuiteReport, err error) {
	ctx, span := s.startSpan(ctx, "RunSuite", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	var v model.Version
	if req.VersionID != nil {
		v, err = s.store.GetVersion(ctx, *req.VersionID)
	} else {
		v, err = s.store.GetCurrentVersion(ctx, req.AutomatonID)
	}
	if err != nil {
		return SuiteReport{}, fmt.Errorf("registry: run suite: %w", err)
	}
	if v.AutomatonID != req.AutomatonID {
		return SuiteReport{}, fmt.Errorf("registry: run suite: %w",
			apperrors.Conflict("version %s belongs to another automaton", v.ID))
	}
	tests, err := s.ListTests(ctx, req.AutomatonID, false)
	if err != nil {
		return SuiteReport{}, fmt.Errorf("registry: run suite: %w", err)
	}

	results := make([]model.TestResult, len(tests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.suiteConcurrency)
	for i, t := range tests {
		g.Go(func() error {
			r, err := s.RunTest(gctx, t.ID, v.ID)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SuiteReport{}, fmt.Errorf("registry: run suite: %w", err)
	}

	report = SuiteReport{
		AutomatonID: req.AutomatonID,
		Version:     v.Ref(),
		Results:     results,
		Counts:      make(map[model.TestStatus]int, 4),
	}
	for _, r := range results {
		report.Counts[r.Status]++
	}
	passed := report.Counts[model.TestStatusPassed]
	executed := passed + report.Counts[model.TestStatusFailed] + report.Counts[model.TestStatusError]
	if executed > 0 {
		report.PassRate = float64(passed) / float64(executed)
	}

	if req.RecordPassRate && executed > 0 {
		m, err := s.RecordMetric(ctx, model.RecordMetricRequest{
			AutomatonID: req.AutomatonID,
			VersionID:   &v.ID,
			Type:        PassRateMetric,
			Value:       report.PassRate,
			Unit:        "ratio",
			SampleSize:  executed,
			Metadata: map[string]any{
				"passed":  passed,
				"skipped": report.Counts[model.TestStatusSkipped],
			},
		})
		if err != nil {
			return SuiteReport{}, fmt.Errorf("registry: run suite: %w", err)
		}
		report.Metric = &m
	}

	s.logger.Info("registry: suite finished",
		"automaton_id", req.AutomatonID, "version", v.VersionNumber,
		"tests", len(results), "pass_rate", report.PassRate)
	return report, nil
}
