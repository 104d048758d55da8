package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if err := model.ValidateTag(t); err != nil {
			return nil, err
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func validateDomain(domain string) error {
	if err := model.ValidateText("domain", domain, model.MaxNameLen, true); err != nil {
		return err
	}
	if strings.TrimSpace(domain) != domain {
		return apperrors.Invalid("domain", "must not have leading or trailing whitespace")
	}
	return nil
}

// CreateAutomaton registers a new, active automaton.
func (s *Service) CreateAutomaton(ctx context.Context, req model.CreateAutomatonRequest) (a model.Automaton, err error) {
	ctx, span := s.startSpan(ctx, "CreateAutomaton", uuid.Nil)
	defer func() { endSpan(span, err) }()

	if err := model.ValidateIdentifier("name", req.Name); err != nil {
		return model.Automaton{}, err
	}
	if err := validateDomain(req.Domain); err != nil {
		return model.Automaton{}, err
	}
	if err := model.ValidateText("description", req.Description, model.MaxDescriptionLen, false); err != nil {
		return model.Automaton{}, err
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return model.Automaton{}, err
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Automaton{}, err
	}

	now := s.now()
	a = model.Automaton{
		ID:          ids.New(),
		Name:        req.Name,
		Domain:      req.Domain,
		Description: req.Description,
		Active:      true,
		Tags:        tags,
		Metadata:    storage.Metadata(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertAutomaton(ctx, a); err != nil {
			return err
		}
		_, err := s.appendChange(ctx, tx, a.ID, model.ChangeAutomatonCreate,
			fmt.Sprintf("created automaton %s", a.Name), nil, a, actor)
		return err
	})
	if err != nil {
		return model.Automaton{}, fmt.Errorf("registry: create automaton: %w", err)
	}

	s.logger.Info("registry: automaton created", "automaton_id", a.ID, "name", a.Name, "domain", a.Domain, "actor", actor)
	return a, nil
}

// UpdateAutomaton patches an automaton's descriptive fields. A patch that
// changes nothing returns the automaton without recording a change.
func (s *Service) UpdateAutomaton(ctx context.Context, req model.UpdateAutomatonRequest) (a model.Automaton, err error) {
	ctx, span := s.startSpan(ctx, "UpdateAutomaton", req.ID)
	defer func() { endSpan(span, err) }()

	if req.Domain != nil {
		if err := validateDomain(*req.Domain); err != nil {
			return model.Automaton{}, err
		}
	}
	if req.Description != nil {
		if err := model.ValidateText("description", *req.Description, model.MaxDescriptionLen, false); err != nil {
			return model.Automaton{}, err
		}
	}
	var tags []string
	if req.Tags != nil {
		if tags, err = normalizeTags(*req.Tags); err != nil {
			return model.Automaton{}, err
		}
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Automaton{}, err
	}

	err = s.store.WithAutomatonLock(ctx, req.ID, func(tx storage.Tx, before model.Automaton) error {
		after := before
		if req.Domain != nil {
			after.Domain = *req.Domain
		}
		if req.Description != nil {
			after.Description = *req.Description
		}
		if req.Tags != nil {
			after.Tags = tags
		}
		if req.Metadata != nil {
			after.Metadata = storage.Metadata(*req.Metadata)
		}
		if sameAutomaton(before, after) {
			a = before
			return nil
		}

		after.UpdatedAt = s.now()
		if err := tx.UpdateAutomaton(ctx, after); err != nil {
			return err
		}
		if _, err := s.appendChange(ctx, tx, after.ID, model.ChangeAutomatonUpdate,
			fmt.Sprintf("updated automaton %s", after.Name), before, after, actor); err != nil {
			return err
		}
		a = after
		return nil
	})
	if err != nil {
		return model.Automaton{}, fmt.Errorf("registry: update automaton: %w", err)
	}
	return a, nil
}

func sameAutomaton(x, y model.Automaton) bool {
	if x.Domain != y.Domain || x.Description != y.Description || !slices.Equal(x.Tags, y.Tags) {
		return false
	}
	// Metadata values came through JSON on at least one side.
	xs, errX := snapshot(x.Metadata)
	ys, errY := snapshot(y.Metadata)
	return errX == nil && errY == nil && model.JSONEqual(xs, ys)
}

// SetAutomatonActive soft-activates or deactivates an automaton.
// Deactivation keeps every version, test and result.
func (s *Service) SetAutomatonActive(ctx context.Context, id uuid.UUID, active bool, actor string) (a model.Automaton, err error) {
	ctx, span := s.startSpan(ctx, "SetAutomatonActive", id)
	defer func() { endSpan(span, err) }()

	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return model.Automaton{}, err
	}

	err = s.store.WithAutomatonLock(ctx, id, func(tx storage.Tx, before model.Automaton) error {
		if before.Active == active {
			a = before
			return nil
		}
		after := before
		after.Active = active
		after.UpdatedAt = s.now()
		if err := tx.UpdateAutomaton(ctx, after); err != nil {
			return err
		}
		ct, verb := model.ChangeAutomatonDeactivate, "deactivated"
		if active {
			ct, verb = model.ChangeAutomatonActivate, "activated"
		}
		if _, err := s.appendChange(ctx, tx, id, ct, fmt.Sprintf("%s automaton %s", verb, after.Name),
			map[string]bool{"active": before.Active}, map[string]bool{"active": active}, actor); err != nil {
			return err
		}
		a = after
		return nil
	})
	if err != nil {
		return model.Automaton{}, fmt.Errorf("registry: set automaton active: %w", err)
	}
	return a, nil
}

// DeleteAutomaton hard-deletes an automaton with its versions, tools,
// tests, metrics and ledger. Test results survive with their version
// reference cleared. The ledger goes with the automaton, so the deletion is
// recorded in the log instead.
func (s *Service) DeleteAutomaton(ctx context.Context, id uuid.UUID, actor string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteAutomaton", id)
	defer func() { endSpan(span, err) }()

	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return err
	}

	var name string
	err = s.store.WithAutomatonLock(ctx, id, func(tx storage.Tx, a model.Automaton) error {
		name = a.Name
		return tx.DeleteAutomaton(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("registry: delete automaton: %w", err)
	}

	s.logger.Info("registry: automaton deleted", "automaton_id", id, "name", name, "actor", actor)
	return nil
}

// GetAutomaton returns an automaton by id.
func (s *Service) GetAutomaton(ctx context.Context, id uuid.UUID) (model.Automaton, error) {
	a, err := s.store.GetAutomaton(ctx, id)
	if err != nil {
		return model.Automaton{}, fmt.Errorf("registry: get automaton: %w", err)
	}
	return a, nil
}

// GetAutomatonByName returns an automaton by its unique name.
func (s *Service) GetAutomatonByName(ctx context.Context, name string) (model.Automaton, error) {
	a, err := s.store.GetAutomatonByName(ctx, name)
	if err != nil {
		return model.Automaton{}, fmt.Errorf("registry: get automaton by name: %w", err)
	}
	return a, nil
}

// ResolveAutomaton accepts either an id or a name.
func (s *Service) ResolveAutomaton(ctx context.Context, ref string) (model.Automaton, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Automaton{}, apperrors.Invalid("automaton", "is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		a, err := s.store.GetAutomaton(ctx, id)
		if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
			return a, err
		}
		// A name that happens to parse as a UUID.
	}
	return s.GetAutomatonByName(ctx, ref)
}

// ListAutomata returns automata ordered by name.
func (s *Service) ListAutomata(ctx context.Context, f model.AutomatonFilter) ([]model.Automaton, error) {
	out, err := s.store.ListAutomata(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("registry: list automata: %w", err)
	}
	return out, nil
}
