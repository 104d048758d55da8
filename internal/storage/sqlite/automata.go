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

const automatonColumns = `id, name, domain, description, active, tags, metadata, created_at, updated_at`

func scanAutomaton(row scanner) (model.Automaton, error) {
	var (
		a                    model.Automaton
		tags, metadata       string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&a.ID, &a.Name, &a.Domain, &a.Description, &a.Active,
		&tags, &metadata, &createdAt, &updatedAt,
	); err != nil {
		return model.Automaton{}, err
	}
	var err error
	if a.Tags, err = decodeTags(tags); err != nil {
		return model.Automaton{}, err
	}
	if a.Metadata, err = decodeMetadata(metadata); err != nil {
		return model.Automaton{}, err
	}
	a.CreatedAt = fromMicros(createdAt)
	a.UpdatedAt = fromMicros(updatedAt)
	return a, nil
}

func (q queries) GetAutomaton(ctx context.Context, id uuid.UUID) (model.Automaton, error) {
	a, err := scanAutomaton(q.q.QueryRowContext(ctx,
		`SELECT `+automatonColumns+` FROM automata WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Automaton{}, apperrors.NotFound("automaton", id)
	}
	return a, classify("get automaton", err)
}

func (q queries) GetAutomatonByName(ctx context.Context, name string) (model.Automaton, error) {
	a, err := scanAutomaton(q.q.QueryRowContext(ctx,
		`SELECT `+automatonColumns+` FROM automata WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Automaton{}, &apperrors.NotFoundError{Entity: "automaton", ID: name}
	}
	return a, classify("get automaton by name", err)
}

func (q queries) ListAutomata(ctx context.Context, f model.AutomatonFilter) ([]model.Automaton, error) {
	w := storage.AutomatonWhere(dialect, f)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+automatonColumns+` FROM automata`+w.String()+` ORDER BY name`, w.Args()...)
	if err != nil {
		return nil, classify("list automata", err)
	}
	defer rows.Close()

	var out []model.Automaton
	for rows.Next() {
		a, err := scanAutomaton(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan automaton: %w", err)
		}
		out = append(out, a)
	}
	return out, classify("list automata", rows.Err())
}

func (q queries) InsertAutomaton(ctx context.Context, a model.Automaton) error {
	tags, err := encodeTags(a.Tags)
	if err != nil {
		return apperrors.Invalid("tags", err.Error())
	}
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return apperrors.Invalid("metadata", err.Error())
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO automata (`+automatonColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Domain, a.Description, a.Active,
		tags, metadata, a.CreatedAt.UnixMicro(), a.UpdatedAt.UnixMicro(),
	)
	return classify("insert automaton", err)
}

func (q queries) UpdateAutomaton(ctx context.Context, a model.Automaton) error {
	tags, err := encodeTags(a.Tags)
	if err != nil {
		return apperrors.Invalid("tags", err.Error())
	}
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return apperrors.Invalid("metadata", err.Error())
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE automata
		 SET domain = ?, description = ?, active = ?, tags = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		a.Domain, a.Description, a.Active, tags, metadata, a.UpdatedAt.UnixMicro(), a.ID,
	)
	if err != nil {
		return classify("update automaton", err)
	}
	return requireRow(res, "update automaton", apperrors.NotFound("automaton", a.ID))
}

func (q queries) DeleteAutomaton(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM automata WHERE id = ?`, id)
	if err != nil {
		return classify("delete automaton", err)
	}
	return requireRow(res, "delete automaton", apperrors.NotFound("automaton", id))
}

// requireRow returns missing when res affected no rows.
func requireRow(res sql.Result, op string, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
