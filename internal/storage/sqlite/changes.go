package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

const changeColumns = `id, automaton_id, change_type, description, before_data, after_data, actor, content_hash, created_at`

func scanChange(row scanner) (model.Change, error) {
	var (
		c             model.Change
		changeType    string
		before, after sql.NullString
		createdAt     int64
	)
	if err := row.Scan(
		&c.ID, &c.AutomatonID, &changeType, &c.Description, &before, &after,
		&c.Actor, &c.ContentHash, &createdAt,
	); err != nil {
		return model.Change{}, err
	}
	c.ChangeType = model.ChangeType(changeType)
	if before.Valid {
		c.Before = storage.JSONFromColumn([]byte(before.String))
	}
	if after.Valid {
		c.After = storage.JSONFromColumn([]byte(after.String))
	}
	c.CreatedAt = fromMicros(createdAt)
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

	rows, err := q.q.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, classify("list changes", err)
	}
	defer rows.Close()

	var out []model.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, classify("list changes", rows.Err())
}

func (q queries) InsertChange(ctx context.Context, c model.Change) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO automata_changes (`+changeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AutomatonID, string(c.ChangeType), c.Description,
		jsonText(storage.JSONBytes(c.Before)), jsonText(storage.JSONBytes(c.After)),
		c.Actor, c.ContentHash, c.CreatedAt.UnixMicro(),
	)
	return classify("insert change", err)
}
