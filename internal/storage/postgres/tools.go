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

const toolColumns = `id, automaton_id, name, description, input_schema, output_schema, required, created_at, updated_at`

func scanTool(row pgx.Row) (model.Tool, error) {
	var (
		t             model.Tool
		input, output []byte
	)
	if err := row.Scan(
		&t.ID, &t.AutomatonID, &t.Name, &t.Description, &input, &output,
		&t.Required, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return model.Tool{}, err
	}
	t.InputSchema = storage.JSONFromColumn(input)
	t.OutputSchema = storage.JSONFromColumn(output)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (q queries) GetTool(ctx context.Context, automatonID uuid.UUID, name string) (model.Tool, error) {
	t, err := scanTool(q.q.QueryRow(ctx,
		`SELECT `+toolColumns+` FROM automata_tools WHERE automaton_id = $1 AND name = $2`,
		automatonID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tool{}, &apperrors.NotFoundError{Entity: "tool", ID: name}
	}
	return t, classify("get tool", err)
}

func (q queries) ListTools(ctx context.Context, automatonID uuid.UUID, requiredOnly bool) ([]model.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM automata_tools WHERE automaton_id = $1`
	if requiredOnly {
		query += ` AND required`
	}
	rows, err := q.q.Query(ctx, query+` ORDER BY name`, automatonID)
	if err != nil {
		return nil, classify("list tools", err)
	}
	defer rows.Close()

	var out []model.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, classify("list tools", rows.Err())
}

func (q queries) InsertTool(ctx context.Context, t model.Tool) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_tools (`+toolColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.AutomatonID, t.Name, t.Description,
		storage.JSONBytes(t.InputSchema), storage.JSONBytes(t.OutputSchema),
		t.Required, t.CreatedAt, t.UpdatedAt,
	)
	return classify("insert tool", err)
}

func (q queries) UpdateTool(ctx context.Context, t model.Tool) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE automata_tools
		 SET description = $2, input_schema = $3, output_schema = $4, required = $5, updated_at = $6
		 WHERE id = $1`,
		t.ID, t.Description, storage.JSONBytes(t.InputSchema), storage.JSONBytes(t.OutputSchema),
		t.Required, t.UpdatedAt,
	)
	if err != nil {
		return classify("update tool", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("tool", t.ID)
	}
	return nil
}

func (q queries) DeleteTool(ctx context.Context, automatonID uuid.UUID, name string) (bool, error) {
	tag, err := q.q.Exec(ctx,
		`DELETE FROM automata_tools WHERE automaton_id = $1 AND name = $2`, automatonID, name)
	if err != nil {
		return false, classify("delete tool", err)
	}
	return tag.RowsAffected() > 0, nil
}
