package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const testColumns = `id, automaton_id, name, description, test_type, scenario, expected_result, active, created_at, updated_at`

func scanTest(row pgx.Row) (model.Test, error) {
	var (
		t                  model.Test
		testType           string
		scenario, expected []byte
	)
	if err := row.Scan(
		&t.ID, &t.AutomatonID, &t.Name, &t.Description, &testType,
		&scenario, &expected, &t.Active, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return model.Test{}, err
	}
	t.Type = model.TestType(testType)
	t.Scenario = storage.JSONFromColumn(scenario)
	t.ExpectedResult = storage.JSONFromColumn(expected)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (q queries) GetTest(ctx context.Context, id uuid.UUID) (model.Test, error) {
	t, err := scanTest(q.q.QueryRow(ctx,
		`SELECT `+testColumns+` FROM automata_tests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Test{}, apperrors.NotFound("test", id)
	}
	return t, classify("get test", err)
}

func (q queries) ListTests(ctx context.Context, automatonID uuid.UUID, activeOnly bool) ([]model.Test, error) {
	query := `SELECT ` + testColumns + ` FROM automata_tests WHERE automaton_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	rows, err := q.q.Query(ctx, query+` ORDER BY name`, automatonID)
	if err != nil {
		return nil, classify("list tests", err)
	}
	defer rows.Close()

	var out []model.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan test: %w", err)
		}
		out = append(out, t)
	}
	return out, classify("list tests", rows.Err())
}

func (q queries) InsertTest(ctx context.Context, t model.Test) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_tests (`+testColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.AutomatonID, t.Name, t.Description, string(t.Type),
		storage.JSONBytes(t.Scenario), storage.JSONBytes(t.ExpectedResult),
		t.Active, t.CreatedAt, t.UpdatedAt,
	)
	return classify("insert test", err)
}

func (q queries) UpdateTest(ctx context.Context, t model.Test) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE automata_tests
		 SET description = $2, test_type = $3, scenario = $4, expected_result = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		t.ID, t.Description, string(t.Type),
		storage.JSONBytes(t.Scenario), storage.JSONBytes(t.ExpectedResult),
		t.Active, t.UpdatedAt,
	)
	if err != nil {
		return classify("update test", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("test", t.ID)
	}
	return nil
}

func (q queries) DeleteTest(ctx context.Context, id uuid.UUID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM automata_tests WHERE id = $1`, id)
	if err != nil {
		return classify("delete test", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("test", id)
	}
	return nil
}
