package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const testColumns = `id, automaton_id, name, description, test_type, scenario, expected_result, active, created_at, updated_at`

func scanTest(row scanner) (model.Test, error) {
	var (
		t                    model.Test
		testType, scenario   string
		expected             sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&t.ID, &t.AutomatonID, &t.Name, &t.Description, &testType,
		&scenario, &expected, &t.Active, &createdAt, &updatedAt,
	); err != nil {
		return model.Test{}, err
	}
	t.Type = model.TestType(testType)
	t.Scenario = storage.JSONFromColumn([]byte(scenario))
	if expected.Valid {
		t.ExpectedResult = storage.JSONFromColumn([]byte(expected.String))
	}
	t.CreatedAt = fromMicros(createdAt)
	t.UpdatedAt = fromMicros(updatedAt)
	return t, nil
}

func (q queries) GetTest(ctx context.Context, id uuid.UUID) (model.Test, error) {
	t, err := scanTest(q.q.QueryRowContext(ctx,
		`SELECT `+testColumns+` FROM automata_tests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Test{}, apperrors.NotFound("test", id)
	}
	return t, classify("get test", err)
}

func (q queries) ListTests(ctx context.Context, automatonID uuid.UUID, activeOnly bool) ([]model.Test, error) {
	query := `SELECT ` + testColumns + ` FROM automata_tests WHERE automaton_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	rows, err := q.q.QueryContext(ctx, query+` ORDER BY name`, automatonID)
	if err != nil {
		return nil, classify("list tests", err)
	}
	defer rows.Close()

	var out []model.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan test: %w", err)
		}
		out = append(out, t)
	}
	return out, classify("list tests", rows.Err())
}

func (q queries) InsertTest(ctx context.Context, t model.Test) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO automata_tests (`+testColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AutomatonID, t.Name, t.Description, string(t.Type),
		jsonText(storage.JSONBytes(t.Scenario)), jsonText(storage.JSONBytes(t.ExpectedResult)),
		t.Active, t.CreatedAt.UnixMicro(), t.UpdatedAt.UnixMicro(),
	)
	return classify("insert test", err)
}

func (q queries) UpdateTest(ctx context.Context, t model.Test) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE automata_tests
		 SET description = ?, test_type = ?, scenario = ?, expected_result = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		t.Description, string(t.Type),
		jsonText(storage.JSONBytes(t.Scenario)), jsonText(storage.JSONBytes(t.ExpectedResult)),
		t.Active, t.UpdatedAt.UnixMicro(), t.ID,
	)
	if err != nil {
		return classify("update test", err)
	}
	return requireRow(res, "update test", apperrors.NotFound("test", t.ID))
}

func (q queries) DeleteTest(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM automata_tests WHERE id = ?`, id)
	if err != nil {
		return classify("delete test", err)
	}
	return requireRow(res, "delete test", apperrors.NotFound("test", id))
}
