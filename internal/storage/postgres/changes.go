package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const changeColumns = `id, automaton_id, change_type, description, before_data, after_data, actor, content_hash, created_at`

func scanChange(row pgx.Row) (model.Change, error) {
	var (
		c             model.Change
		changeType    string
		before, after []byte
	)
	if err := row.Scan(
		&c.ID, &c.AutomatonID, &changeType, &c.Description, &before, &after,
		&c.Actor, &c.ContentHash, &c.CreatedAt,
	); err != nil {
		return model.Change{}, err
	}
	c.ChangeType = model.ChangeType(changeType)
	c.Before = storage.JSONFromColumn(before)
	c.After = storage.JSONFromColumn(after)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (q queries) ListChanges(ctx context.Context, f model.ChangeFilter) ([]model.Change, error) {
	w := storage.ChangeWhere(dialect, f)
	query := `SELECT ` + changeColumns + ` FROM automata_changes` + w.String() + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		// Newest f.Limit entries, returned oldest first.
		query = `SELECT ` + changeColumns + ` FROM (SELECT ` + changeColumns + ` FROM automata_changes` + w.String() +
			` ORDER BY created_at DESC, id DESC` + storage.LimitClause(w, f.Limit) + `) AS recent ORDER BY created_at, id`
	}

	rows, err := q.q.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list changes", err)
	}
	defer rows.Close()

	var out []model.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, classify("list changes", rows.Err())
}

// InsertChange appends to the ledger. The table rejects updates, so this is
// the only write path.
func (q queries) InsertChange(ctx context.Context, c model.Change) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_changes (`+changeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.AutomatonID, string(c.ChangeType), c.Description,
		storage.JSONBytes(c.Before), storage.JSONBytes(c.After),
		c.Actor, c.ContentHash, c.CreatedAt,
	)
	return classify("insert change", err)
}
