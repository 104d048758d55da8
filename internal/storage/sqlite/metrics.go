package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const metricColumns = `id, automaton_id, version_id, metric_type, value, unit, evaluation_date, sample_size, metadata, created_at`

func scanMetric(row scanner) (model.Metric, error) {
	var (
		m                    model.Metric
		versionID            uuid.NullUUID
		metadata             string
		evaluated, createdAt int64
	)
	if err := row.Scan(
		&m.ID, &m.AutomatonID, &versionID, &m.MetricType, &m.Value, &m.Unit,
		&evaluated, &m.SampleSize, &metadata, &createdAt,
	); err != nil {
		return model.Metric{}, err
	}
	var err error
	if m.Metadata, err = decodeMetadata(metadata); err != nil {
		return model.Metric{}, err
	}
	m.VersionID = uuidPtr(versionID)
	m.EvaluationDate = fromMicros(evaluated)
	m.CreatedAt = fromMicros(createdAt)
	return m, nil
}

func (q queries) ListMetrics(ctx context.Context, f model.MetricFilter) ([]model.Metric, error) {
	w := storage.MetricWhere(dialect, f)
	query := `SELECT ` + metricColumns + ` FROM automata_metrics` + w.String() +
		` ORDER BY evaluation_date, id` + storage.LimitClause(w, f.Limit)

	rows, err := q.q.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list metrics", err)
	}
	defer rows.Close()

	var out []model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, classify("list metrics", rows.Err())
}

func (q queries) AggregateMetrics(ctx context.Context, f model.MetricFilter) (model.MetricAggregate, error) {
	w := storage.MetricWhere(dialect, f)
	var agg model.MetricAggregate
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(value), 0.0), COALESCE(MIN(value), 0.0), COALESCE(MAX(value), 0.0)
		 FROM automata_metrics`+w.String(), w.Args()...,
	).Scan(&agg.Count, &agg.Mean, &agg.Min, &agg.Max)
	if err != nil {
		return model.MetricAggregate{}, classify("aggregate metrics", err)
	}
	return agg, nil
}

func (q queries) AggregateMetricsByVersion(ctx context.Context, f model.MetricFilter) ([]model.VersionAggregate, error) {
	w := storage.MetricWhere(dialect, f)
	rows, err := q.q.QueryContext(ctx,
		`SELECT g.version_id, g.n, g.mean, g.lo, g.hi
		 FROM (
		     SELECT version_id, COUNT(*) AS n, AVG(value) AS mean, MIN(value) AS lo, MAX(value) AS hi
		     FROM automata_metrics`+w.String()+`
		     GROUP BY version_id
		 ) g
		 LEFT JOIN automata_versions v ON v.id = g.version_id
		 ORDER BY v.version_number NULLS FIRST`, w.Args()...)
	if err != nil {
		return nil, classify("aggregate metrics by version", err)
	}
	defer rows.Close()

	var out []model.VersionAggregate
	for rows.Next() {
		var (
			va        model.VersionAggregate
			versionID uuid.NullUUID
		)
		if err := rows.Scan(&versionID, &va.Count, &va.Mean, &va.Min, &va.Max); err != nil {
			return nil, fmt.Errorf("sqlite: scan version aggregate: %w", err)
		}
		va.VersionID = uuidPtr(versionID)
		out = append(out, va)
	}
	return out, classify("aggregate metrics by version", rows.Err())
}

func (q queries) InsertMetric(ctx context.Context, m model.Metric) error {
	metadata, err := encodeMetadata(m.Metadata)
	if err != nil {
		return apperrors.Invalid("metadata", err.Error())
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO automata_metrics (`+metricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AutomatonID, nullUUID(m.VersionID), m.MetricType, m.Value, m.Unit,
		m.EvaluationDate.UnixMicro(), m.SampleSize, metadata, m.CreatedAt.UnixMicro(),
	)
	return classify("insert metric", err)
}
