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

const automatonColumns = `id, name, domain, description, active, tags, metadata, created_at, updated_at`

func scanAutomaton(row pgx.Row) (model.Automaton, error) {
	var a model.Automaton
	if err := row.Scan(
		&a.ID, &a.Name, &a.Domain, &a.Description, &a.Active,
		&a.Tags, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return model.Automaton{}, err
	}
	a.Tags = storage.Tags(a.Tags)
	a.Metadata = storage.Metadata(a.Metadata)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (q queries) GetAutomaton(ctx context.Context, id uuid.UUID) (model.Automaton, error) {
	a, err := scanAutomaton(q.q.QueryRow(ctx,
		`SELECT `+automatonColumns+` FROM automata WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Automaton{}, apperrors.NotFound("automaton", id)
	}
	return a, classify("get automaton", err)
}

func (q queries) GetAutomatonByName(ctx context.Context, name string) (model.Automaton, error) {
	a, err := scanAutomaton(q.q.QueryRow(ctx,
		`SELECT `+automatonColumns+` FROM automata WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Automaton{}, &apperrors.NotFoundError{Entity: "automaton", ID: name}
	}
	return a, classify("get automaton by name", err)
}

func (q queries) ListAutomata(ctx context.Context, f model.AutomatonFilter) ([]model.Automaton, error) {
	w := storage.AutomatonWhere(dialect, f)
	rows, err := q.q.Query(ctx,
		`SELECT `+automatonColumns+` FROM automata`+w.String()+` ORDER BY name`, w.Args()...)
	if err != nil {
		return nil, classify("list automata", err)
	}
	defer rows.Close()

	var out []model.Automaton
	for rows.Next() {
		a, err := scanAutomaton(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan automaton: %w", err)
		}
		out = append(out, a)
	}
	return out, classify("list automata", rows.Err())
}

// lockAutomaton reads the automaton row and holds FOR UPDATE on it until the
// surrounding transaction ends.
func (q queries) lockAutomaton(ctx context.Context, id uuid.UUID) (model.Automaton, error) {
	a, err := scanAutomaton(q.q.QueryRow(ctx,
		`SELECT `+automatonColumns+` FROM automata WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Automaton{}, apperrors.NotFound("automaton", id)
	}
	return a, classify("lock automaton", err)
}

func (q queries) InsertAutomaton(ctx context.Context, a model.Automaton) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata (`+automatonColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Name, a.Domain, a.Description, a.Active,
		storage.Tags(a.Tags), storage.Metadata(a.Metadata), a.CreatedAt, a.UpdatedAt,
	)
	return classify("insert automaton", err)
}

func (q queries) UpdateAutomaton(ctx context.Context, a model.Automaton) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE automata
		 SET domain = $2, description = $3, active = $4, tags = $5, metadata = $6, updated_at = $7
		 WHERE id = $1`,
		a.ID, a.Domain, a.Description, a.Active,
		storage.Tags(a.Tags), storage.Metadata(a.Metadata), a.UpdatedAt,
	)
	if err != nil {
		return classify("update automaton", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("automaton", a.ID)
	}
	return nil
}

func (q queries) DeleteAutomaton(ctx context.Context, id uuid.UUID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM automata WHERE id = $1`, id)
	if err != nil {
		return classify("delete automaton", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("automaton", id)
	}
	return nil
}
