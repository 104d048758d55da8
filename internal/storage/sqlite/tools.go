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

const toolColumns = `id, automaton_id, name, description, input_schema, output_schema, required, created_at, updated_at`

func scanTool(row scanner) (model.Tool, error) {
	var (
		t                    model.Tool
		input, output        string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&t.ID, &t.AutomatonID, &t.Name, &t.Description, &input, &output,
		&t.Required, &createdAt, &updatedAt,
	); err != nil {
		return model.Tool{}, err
	}
	t.InputSchema = storage.JSONFromColumn([]byte(input))
	t.OutputSchema = storage.JSONFromColumn([]byte(output))
	t.CreatedAt = fromMicros(createdAt)
	t.UpdatedAt = fromMicros(updatedAt)
	return t, nil
}

func (q queries) GetTool(ctx context.Context, automatonID uuid.UUID, name string) (model.Tool, error) {
	t, err := scanTool(q.q.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM automata_tools WHERE automaton_id = ? AND name = ?`,
		automatonID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tool{}, &apperrors.NotFoundError{Entity: "tool", ID: name}
	}
	return t, classify("get tool", err)
}

func (q queries) ListTools(ctx context.Context, automatonID uuid.UUID, requiredOnly bool) ([]model.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM automata_tools WHERE automaton_id = ?`
	if requiredOnly {
		query += ` AND required = 1`
	}
	rows, err := q.q.QueryContext(ctx, query+` ORDER BY name`, automatonID)
	if err != nil {
		return nil, classify("list tools", err)
	}
	defer rows.Close()

	var out []model.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, classify("list tools", rows.Err())
}

func (q queries) InsertTool(ctx context.Context, t model.Tool) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO automata_tools (`+toolColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AutomatonID, t.Name, t.Description,
		jsonText(storage.JSONBytes(t.InputSchema)), jsonText(storage.JSONBytes(t.OutputSchema)),
		t.Required, t.CreatedAt.UnixMicro(), t.UpdatedAt.UnixMicro(),
	)
	return classify("insert tool", err)
}

func (q queries) UpdateTool(ctx context.Context, t model.Tool) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE automata_tools
		 SET description = ?, input_schema = ?, output_schema = ?, required = ?, updated_at = ?
		 WHERE id = ?`,
		t.Description, jsonText(storage.JSONBytes(t.InputSchema)), jsonText(storage.JSONBytes(t.OutputSchema)),
		t.Required, t.UpdatedAt.UnixMicro(), t.ID,
	)
	if err != nil {
		return classify("update tool", err)
	}
	return requireRow(res, "update tool", apperrors.NotFound("tool", t.ID))
}

func (q queries) DeleteTool(ctx context.Context, automatonID uuid.UUID, name string) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM automata_tools WHERE automaton_id = ? AND name = ?`, automatonID, name)
	if err != nil {
		return false, classify("delete tool", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete tool", err)
	}
	return n > 0, nil
}
