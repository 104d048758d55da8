package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

const versionColumns = `id, automaton_id, version_number, system_prompt, prompt_hash, description, is_current, created_by, created_at`

func scanVersion(row scanner) (model.Version, error) {
	var (
		v         model.Version
		createdAt int64
	)
	if err := row.Scan(
		&v.ID, &v.AutomatonID, &v.VersionNumber, &v.SystemPrompt, &v.PromptHash,
		&v.Description, &v.IsCurrent, &v.CreatedBy, &createdAt,
	); err != nil {
		return model.Version{}, err
	}
	v.CreatedAt = fromMicros(createdAt)
	return v, nil
}

func (q queries) GetVersion(ctx context.Context, id uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM automata_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("version", id)
	}
	return v, classify("get version", err)
}

func (q queries) GetCurrentVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM automata_versions WHERE automaton_id = ? AND is_current = 1`, automatonID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("current version of automaton", automatonID)
	}
	return v, classify("get current version", err)
}

func (q queries) GetLatestVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM automata_versions
		 WHERE automaton_id = ? ORDER BY version_number DESC LIMIT 1`, automatonID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("latest version of automaton", automatonID)
	}
	return v, classify("get latest version", err)
}

func (q queries) ListVersions(ctx context.Context, automatonID uuid.UUID) ([]model.Version, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM automata_versions
		 WHERE automaton_id = ? ORDER BY version_number`, automatonID)
	if err != nil {
		return nil, classify("list versions", err)
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, classify("list versions", rows.Err())
}

func (q queries) InsertVersion(ctx context.Context, v model.Version) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO automata_versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.AutomatonID, v.VersionNumber, v.SystemPrompt, v.PromptHash,
		v.Description, v.IsCurrent, v.CreatedBy, v.CreatedAt.UnixMicro(),
	)
	return classify("insert version", err)
}

func (q queries) SetCurrentVersion(ctx context.Context, automatonID, versionID uuid.UUID) error {
	if _, err := q.q.ExecContext(ctx,
		`UPDATE automata_versions SET is_current = 0
		 WHERE automaton_id = ? AND is_current = 1 AND id <> ?`,
		automatonID, versionID,
	); err != nil {
		return classify("clear current version", err)
	}

	res, err := q.q.ExecContext(ctx,
		`UPDATE automata_versions SET is_current = 1 WHERE id = ? AND automaton_id = ?`,
		versionID, automatonID,
	)
	if err != nil {
		return classify("set current version", err)
	}
	return requireRow(res, "set current version", apperrors.NotFound("version", versionID))
}
