package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

const versionColumns = `id, automaton_id, version_number, system_prompt, prompt_hash, description, is_current, created_by, created_at`

func scanVersion(row pgx.Row) (model.Version, error) {
	var v model.Version
	if err := row.Scan(
		&v.ID, &v.AutomatonID, &v.VersionNumber, &v.SystemPrompt, &v.PromptHash,
		&v.Description, &v.IsCurrent, &v.CreatedBy, &v.CreatedAt,
	); err != nil {
		return model.Version{}, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func (q queries) GetVersion(ctx context.Context, id uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM automata_versions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("version", id)
	}
	return v, classify("get version", err)
}

func (q queries) GetCurrentVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM automata_versions WHERE automaton_id = $1 AND is_current`, automatonID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("current version of automaton", automatonID)
	}
	return v, classify("get current version", err)
}

func (q queries) GetLatestVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error) {
	v, err := scanVersion(q.q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM automata_versions
		 WHERE automaton_id = $1 ORDER BY version_number DESC LIMIT 1`, automatonID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, apperrors.NotFound("latest version of automaton", automatonID)
	}
	return v, classify("get latest version", err)
}

func (q queries) ListVersions(ctx context.Context, automatonID uuid.UUID) ([]model.Version, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+versionColumns+` FROM automata_versions
		 WHERE automaton_id = $1 ORDER BY version_number`, automatonID)
	if err != nil {
		return nil, classify("list versions", err)
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, classify("list versions", rows.Err())
}

func (q queries) InsertVersion(ctx context.Context, v model.Version) error {
	_, err := q.q.Exec(ctx,
		`INSERT INTO automata_versions (`+versionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.AutomatonID, v.VersionNumber, v.SystemPrompt, v.PromptHash,
		v.Description, v.IsCurrent, v.CreatedBy, v.CreatedAt,
	)
	return classify("insert version", err)
}

func (q queries) SetCurrentVersion(ctx context.Context, automatonID, versionID uuid.UUID) error {
	// Clear first: the partial unique index is not deferrable.
	if _, err := q.q.Exec(ctx,
		`UPDATE automata_versions SET is_current = false
		 WHERE automaton_id = $1 AND is_current AND id <> $2`,
		automatonID, versionID,
	); err != nil {
		return classify("clear current version", err)
	}

	tag, err := q.q.Exec(ctx,
		`UPDATE automata_versions SET is_current = true WHERE id = $1 AND automaton_id = $2`,
		versionID, automatonID,
	)
	if err != nil {
		return classify("set current version", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("version", versionID)
	}
	return nil
}
