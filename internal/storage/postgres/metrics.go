package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const metricColumns = `id, automaton_id, version_id, metric_type, value, unit, evaluation_date, sample_size, metadata, created_at`

func scanMetric(row pgx.Row) (model.Metric, error) {
	var m model.Metric
	if err := row.Scan(
		&m.ID, &m.AutomatonID, &m.VersionID, &m.MetricType, &m.Value, &m.Unit,
		&m.EvaluationDate, &m.SampleSize, &m.Metadata, &m.CreatedAt,
	); err != nil {
		return model.Metric{}, err
	}
	m.Metadata = storage.Metadata(m.Metadata)
	m.EvaluationDate = m.EvaluationDate.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (q queries) ListMetrics(ctx context.Context, f model.MetricFilter) ([]model.Metric, error) {
	w := storage.MetricWhere(dialect, f)
	query := `SELECT ` + metricColumns + ` FROM automata_metrics` + w.String() +
		` ORDER BY evaluation_date, id` + storage.LimitClause(w, f.Limit)

	rows, err := q.q.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list metrics", err)
	}
	defer rows.Close()

	var out []model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, classify("list metrics", rows.Err())
}

func (q queries) AggregateMetrics(ctx context.Context, f model.MetricFilter) (model.MetricAggregate, error) {
	w := storage.MetricWhere(dialect, f)
	var agg model.MetricAggregate
	err := q.q.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(value), 0), COALESCE(MIN(value), 0), COALESCE(MAX(value), 0)
		 FROM automata_metrics`+w.String(), w.Args()...,
	).Scan(&agg.Count, &agg.Mean, &agg.Min, &agg.Max)
	if err != nil {
		return model.MetricAggregate{}, classify("aggregate metrics", err)
	}
	return agg, nil
}

func (q queries) AggregateMetricsByVersion(ctx context.Context, f model.MetricFilter) ([]model.VersionAggregate, error) {
	w := storage.MetricWhere(dialect, f)
	rows, err := q.q.Query(ctx,
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
		var va model.VersionAggregate
		if err := rows.Scan(&va.VersionID, &va.Count, &va.Mean, &va.Min, &va.Max); err != nil {
			return nil, fmt.Errorf("postgres: scan version aggregate: %w", err)
		}
		out = append(out, va)
	}
	return out, classify("aggregate metrics by version", rows.Err())
}

func (q queries) InsertMetric(ctx context.Context, m model.Metric) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_metrics (`+metricColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.AutomatonID, m.VersionID, m.MetricType, m.Value, m.Unit,
		m.EvaluationDate, m.SampleSize, storage.Metadata(m.Metadata), m.CreatedAt,
	)
	return classify("insert metric", err)
}
