package registry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

func validateMetricType(t string) error {
	if err := model.ValidateText("metric_type", t, model.MaxNameLen, true); err != nil {
		return err
	}
	if strings.TrimSpace(t) != t {
		return apperrors.Invalid("metric_type", "must not have leading or trailing whitespace")
	}
	return nil
}

func validateRange(r model.DateRange) error {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return apperrors.Invalid("range", "end must not be before start")
	}
	return nil
}

// RecordMetric stores an evaluation measurement. Metrics are not part of
// the change ledger.
func (s *Service) RecordMetric(ctx context.Context, req model.RecordMetricRequest) (m model.Metric, err error) {
	ctx, span := s.startSpan(ctx, "RecordMetric", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	if err := validateMetricType(req.Type); err != nil {
		return model.Metric{}, err
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return model.Metric{}, apperrors.Invalid("value", "must be a finite number")
	}
	if req.SampleSize < 0 {
		return model.Metric{}, apperrors.Invalid("sample_size", "must not be negative")
	}
	if err := model.ValidateText("unit", req.Unit, model.MaxNameLen, false); err != nil {
		return model.Metric{}, err
	}

	now := s.now()
	m = model.Metric{
		ID:             ids.New(),
		AutomatonID:    req.AutomatonID,
		VersionID:      req.VersionID,
		MetricType:     req.Type,
		Value:          req.Value,
		Unit:           req.Unit,
		EvaluationDate: req.EvaluationDate.UTC().Truncate(time.Microsecond),
		SampleSize:     req.SampleSize,
		Metadata:       storage.Metadata(req.Metadata),
		CreatedAt:      now,
	}
	if req.EvaluationDate.IsZero() {
		m.EvaluationDate = now
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetAutomaton(ctx, req.AutomatonID); err != nil {
			return err
		}
		if req.VersionID != nil {
			v, err := tx.GetVersion(ctx, *req.VersionID)
			if err != nil {
				return err
			}
			if v.AutomatonID != req.AutomatonID {
				return apperrors.Conflict("version %s belongs to another automaton", v.ID)
			}
		}
		return tx.InsertMetric(ctx, m)
	})
	if err != nil {
		return model.Metric{}, fmt.Errorf("registry: record metric: %w", err)
	}
	return m, nil
}

// Aggregate summarizes one metric type for an automaton over an inclusive
// date range. Count is zero when nothing matched.
func (s *Service) Aggregate(ctx context.Context, automatonID uuid.UUID, metricType string, r model.DateRange) (model.MetricAggregate, error) {
	if err := validateMetricType(metricType); err != nil {
		return model.MetricAggregate{}, err
	}
	if err := validateRange(r); err != nil {
		return model.MetricAggregate{}, err
	}
	agg, err := s.store.AggregateMetrics(ctx, model.MetricFilter{
		AutomatonID: automatonID,
		MetricType:  metricType,
		Range:       r,
	})
	if err != nil {
		return model.MetricAggregate{}, fmt.Errorf("registry: aggregate: %w", err)
	}
	return agg, nil
}

// AggregateByVersion is Aggregate grouped by version, oldest version first.
// Metrics without a version come first with a nil VersionID.
func (s *Service) AggregateByVersion(ctx context.Context, automatonID uuid.UUID, metricType string, r model.DateRange) ([]model.VersionAggregate, error) {
	if err := validateMetricType(metricType); err != nil {
		return nil, err
	}
	if err := validateRange(r); err != nil {
		return nil, err
	}
	aggs, err := s.store.AggregateMetricsByVersion(ctx, model.MetricFilter{
		AutomatonID: automatonID,
		MetricType:  metricType,
		Range:       r,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: aggregate by version: %w", err)
	}
	return aggs, nil
}

// ListMetrics returns matching metrics ordered by evaluation date.
func (s *Service) ListMetrics(ctx context.Context, f model.MetricFilter) ([]model.Metric, error) {
	if f.AutomatonID == uuid.Nil {
		return nil, apperrors.Invalid("automaton_id", "is required")
	}
	if err := validateRange(f.Range); err != nil {
		return nil, err
	}
	if f.Limit < 0 {
		return nil, apperrors.Invalid("limit", "must not be negative")
	}
	ms, err := s.store.ListMetrics(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("registry: list metrics: %w", err)
	}
	return ms, nil
}
