package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const resultColumns = `id, test_id, automaton_id, version_id, status, actual_result, execution_time_ns, error_message, executed_at`

func scanResult(row pgx.Row) (model.TestResult, error) {
	var (
		r      model.TestResult
		status string
		actual []byte
		nanos  int64
	)
	if err := row.Scan(
		&r.ID, &r.TestID, &r.AutomatonID, &r.VersionID, &status,
		&actual, &nanos, &r.ErrorMessage, &r.ExecutedAt,
	); err != nil {
		return model.TestResult{}, err
	}
	r.Status = model.TestStatus(status)
	r.ActualResult = storage.JSONFromColumn(actual)
	r.ExecutionTime = time.Duration(nanos)
	r.ExecutedAt = r.ExecutedAt.UTC()
	return r, nil
}

func (q queries) ListTestResults(ctx context.Context, f model.ResultFilter, after *model.ResultCursor, limit int) ([]model.TestResult, error) {
	w, err := storage.ResultWhere(dialect, f, after)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + resultColumns + ` FROM automata_test_results` + w.String() +
		` ORDER BY executed_at DESC, id DESC` + storage.LimitClause(w, limit)

	rows, err := q.q.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list test results", err)
	}
	defer rows.Close()

	var out []model.TestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan test result: %w", err)
		}
		out = append(out, r)
	}
	return out, classify("list test results", rows.Err())
}

func (q queries) InsertTestResult(ctx context.Context, r model.TestResult) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_test_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.TestID, r.AutomatonID, r.VersionID, string(r.Status),
		storage.JSONBytes(r.ActualResult), r.ExecutionTime.Nanoseconds(), r.ErrorMessage, r.ExecutedAt,
	)
	return classify("insert test result", err)
}
