package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const resultColumns = `id, test_id, automaton_id, version_id, status, actual_result, execution_time_ns, error_message, executed_at`

func scanResult(row scanner) (model.TestResult, error) {
	var (
		r                 model.TestResult
		versionID         uuid.NullUUID
		status            string
		actual            sql.NullString
		nanos, executedAt int64
	)
	if err := row.Scan(
		&r.ID, &r.TestID, &r.AutomatonID, &versionID, &status,
		&actual, &nanos, &r.ErrorMessage, &executedAt,
	); err != nil {
		return model.TestResult{}, err
	}
	r.VersionID = uuidPtr(versionID)
	r.Status = model.TestStatus(status)
	if actual.Valid {
		r.ActualResult = storage.JSONFromColumn([]byte(actual.String))
	}
	r.ExecutionTime = time.Duration(nanos)
	r.ExecutedAt = fromMicros(executedAt)
	return r, nil
}

func (q queries) ListTestResults(ctx context.Context, f model.ResultFilter, after *model.ResultCursor, limit int) ([]model.TestResult, error) {
	w, err := storage.ResultWhere(dialect, f, after)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + resultColumns + ` FROM automata_test_results` + w.String() +
		` ORDER BY executed_at DESC, id DESC` + storage.LimitClause(w, limit)

	rows, err := q.q.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list test results", err)
	}
	defer rows.Close()

	var out []model.TestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan test result: %w", err)
		}
		out = append(out, r)
	}
	return out, classify("list test results", rows.Err())
}

func (q queries) InsertTestResult(ctx context.Context, r model.TestResult) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO automata_test_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TestID, r.AutomatonID, nullUUID(r.VersionID), string(r.Status),
		jsonText(storage.JSONBytes(r.ActualResult)), r.ExecutionTime.Nanoseconds(),
		r.ErrorMessage, r.ExecutedAt.UnixMicro(),
	)
	return classify("insert test result", err)
}
