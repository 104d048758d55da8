package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/integrity"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// CreateVersion stores a new system prompt for an automaton.
//
// A prompt identical to the current version, or to the latest version
// that was never promoted, returns that version unchanged. Otherwise the
// new version takes the next version number and is not current, except
// for an automaton's first version which becomes current immediately.
func (s *Service) CreateVersion(ctx context.Context, req model.CreateVersionRequest) (v model.Version, err error) {
	ctx, span := s.startSpan(ctx, "CreateVersion", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.Prompt) == "" {
		return model.Version{}, apperrors.Invalid("prompt", "must not be empty")
	}
	if err := model.ValidateText("prompt", req.Prompt, model.MaxPromptLen, true); err != nil {
		return model.Version{}, err
	}
	if err := model.ValidateText("description", req.Description, model.MaxDescriptionLen, false); err != nil {
		return model.Version{}, err
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Version{}, err
	}
	hash := integrity.ComputePromptHash(req.Prompt)

	created := false
	err = s.store.WithAutomatonLock(ctx, req.AutomatonID, func(tx storage.Tx, a model.Automaton) error {
		current, hasCurrent, err := optionalVersion(tx.GetCurrentVersion(ctx, a.ID))
		if err != nil {
			return err
		}
		if hasCurrent && current.PromptHash == hash {
			v = current
			return nil
		}
		latest, hasLatest, err := optionalVersion(tx.GetLatestVersion(ctx, a.ID))
		if err != nil {
			return err
		}
		if hasLatest && latest.PromptHash == hash {
			v = latest
			return nil
		}

		next := 1
		if hasLatest {
			next = latest.VersionNumber + 1
		}
		v = model.Version{
			ID:            ids.New(),
			AutomatonID:   a.ID,
			VersionNumber: next,
			SystemPrompt:  req.Prompt,
			PromptHash:    hash,
			Description:   req.Description,
			IsCurrent:     !hasCurrent,
			CreatedBy:     actor,
			CreatedAt:     s.now(),
		}
		if err := tx.InsertVersion(ctx, v); err != nil {
			return err
		}

		var before any
		if hasCurrent {
			before = current.Ref()
		}
		if _, err := s.appendChange(ctx, tx, a.ID, model.ChangePromptUpdate,
			fmt.Sprintf("created version %d of %s", v.VersionNumber, a.Name), before, v.Ref(), actor); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return model.Version{}, fmt.Errorf("registry: create version: %w", err)
	}

	if created {
		s.versionsCreated.Add(ctx, 1)
		s.logger.Info("registry: version created",
			"automaton_id", v.AutomatonID, "version", v.VersionNumber, "current", v.IsCurrent, "actor", actor)
	}
	return v, nil
}

// optionalVersion turns a NotFoundError into ok=false.
func optionalVersion(v model.Version, err error) (model.Version, bool, error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		return model.Version{}, false, nil
	}
	if err != nil {
		return model.Version{}, false, err
	}
	return v, true, nil
}

// Promote makes versionID the automaton's current version. Promoting the
// version that is already current returns it without recording a change.
func (s *Service) Promote(ctx context.Context, automatonID, versionID uuid.UUID, actor string) (v model.Version, err error) {
	ctx, span := s.startSpan(ctx, "Promote", automatonID)
	defer func() { endSpan(span, err) }()

	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return model.Version{}, err
	}

	promoted := false
	err = s.store.WithAutomatonLock(ctx, automatonID, func(tx storage.Tx, a model.Automaton) error {
		target, err := tx.GetVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if target.AutomatonID != a.ID {
			return apperrors.Conflict("version %s belongs to another automaton", versionID)
		}
		if target.IsCurrent {
			v = target
			return nil
		}
		current, hasCurrent, err := optionalVersion(tx.GetCurrentVersion(ctx, a.ID))
		if err != nil {
			return err
		}

		if err := tx.SetCurrentVersion(ctx, a.ID, target.ID); err != nil {
			return err
		}
		target.IsCurrent = true

		var before any
		if hasCurrent {
			before = current.Ref()
		}
		if _, err := s.appendChange(ctx, tx, a.ID, model.ChangeVersionPromote,
			fmt.Sprintf("promoted version %d of %s", target.VersionNumber, a.Name), before, target.Ref(), actor); err != nil {
			return err
		}
		v = target
		promoted = true
		return nil
	})
	if err != nil {
		return model.Version{}, fmt.Errorf("registry: promote: %w", err)
	}

	if promoted {
		s.promotions.Add(ctx, 1)
		s.logger.Info("registry: version promoted",
			"automaton_id", automatonID, "version_id", v.ID, "version", v.VersionNumber, "actor", actor)
	}
	return v, nil
}

// GetCurrent returns the automaton's current version. NotFoundError when
// the automaton is missing or has no versions.
func (s *Service) GetCurrent(ctx context.Context, automatonID uuid.UUID) (model.Version, error) {
	v, err := s.store.GetCurrentVersion(ctx, automatonID)
	if err != nil {
		return model.Version{}, fmt.Errorf("registry: get current version: %w", err)
	}
	return v, nil
}

// GetVersion returns a version by id.
func (s *Service) GetVersion(ctx context.Context, versionID uuid.UUID) (model.Version, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return model.Version{}, fmt.Errorf("registry: get version: %w", err)
	}
	return v, nil
}

// ListVersions returns every version of an automaton, oldest first.
func (s *Service) ListVersions(ctx context.Context, automatonID uuid.UUID) ([]model.Version, error) {
	if _, err := s.store.GetAutomaton(ctx, automatonID); err != nil {
		return nil, fmt.Errorf("registry: list versions: %w", err)
	}
	vs, err := s.store.ListVersions(ctx, automatonID)
	if err != nil {
		return nil, fmt.Errorf("registry: list versions: %w", err)
	}
	return vs, nil
}
