package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// DefineTest adds a test scenario to an automaton. Test names are unique
// per automaton; a duplicate is a ConflictError.
func (s *Service) DefineTest(ctx context.Context, req model.DefineTestRequest) (t model.Test, err error) {
	ctx, span := s.startSpan(ctx, "DefineTest", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	if err := model.ValidateText("name", req.Name, model.MaxTestNameLen, true); err != nil {
		return model.Test{}, err
	}
	if strings.TrimSpace(req.Name) != req.Name {
		return model.Test{}, apperrors.Invalid("name", "must not have leading or trailing whitespace")
	}
	if err := model.ValidateText("description", req.Description, model.MaxDescriptionLen, false); err != nil {
		return model.Test{}, err
	}
	if !req.Type.Valid() {
		return model.Test{}, apperrors.Invalid("type", fmt.Sprintf("unknown test type %q", req.Type))
	}
	if err := model.ValidateJSON("scenario", req.Scenario, true); err != nil {
		return model.Test{}, err
	}
	if err := model.ValidateJSON("expected_result", req.ExpectedResult, false); err != nil {
		return model.Test{}, err
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Test{}, err
	}

	err = s.store.WithAutomatonLock(ctx, req.AutomatonID, func(tx storage.Tx, a model.Automaton) error {
		now := s.now()
		t = model.Test{
			ID:             ids.New(),
			AutomatonID:    a.ID,
			Name:           req.Name,
			Description:    req.Description,
			Type:           req.Type,
			Scenario:       model.CanonicalJSON(req.Scenario),
			ExpectedResult: model.CanonicalJSON(req.ExpectedResult),
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if len(t.ExpectedResult) == 0 {
			t.ExpectedResult = nil
		}
		if err := tx.InsertTest(ctx, t); err != nil {
			return err
		}
		_, err := s.appendChange(ctx, tx, a.ID, model.ChangeTestAdd,
			fmt.Sprintf("added %s test %s", t.Type, t.Name), nil, t, actor)
		return err
	})
	if err != nil {
		return model.Test{}, fmt.Errorf("registry: define test: %w", err)
	}
	return t, nil
}

// GetTest returns a test by id.
func (s *Service) GetTest(ctx context.Context, testID uuid.UUID) (model.Test, error) {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return model.Test{}, fmt.Errorf("registry: get test: %w", err)
	}
	return t, nil
}

// ListTests returns an automaton's tests ordered by name.
func (s *Service) ListTests(ctx context.Context, automatonID uuid.UUID, activeOnly bool) ([]model.Test, error) {
	if _, err := s.store.GetAutomaton(ctx, automatonID); err != nil {
		return nil, fmt.Errorf("registry: list tests: %w", err)
	}
	tests, err := s.store.ListTests(ctx, automatonID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("registry: list tests: %w", err)
	}
	return tests, nil
}

// SetTestActive enables or disables a test. Inactive tests are recorded as
// skipped when run.
func (s *Service) SetTestActive(ctx context.Context, testID uuid.UUID, active bool, actor string) (t model.Test, err error) {
	ctx, span := s.startSpan(ctx, "SetTestActive", uuid.Nil)
	defer func() { endSpan(span, err) }()

	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return model.Test{}, err
	}
	// The owning automaton is immutable, so reading it before the lock is safe.
	owner, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return model.Test{}, fmt.Errorf("registry: set test active: %w", err)
	}

	err = s.store.WithAutomatonLock(ctx, owner.AutomatonID, func(tx storage.Tx, _ model.Automaton) error {
		before, err := tx.GetTest(ctx, testID)
		if err != nil {
			return err
		}
		if before.Active == active {
			t = before
			return nil
		}
		after := before
		after.Active = active
		after.UpdatedAt = s.now()
		if err := tx.UpdateTest(ctx, after); err != nil {
			return err
		}
		verb := "deactivated"
		if active {
			verb = "activated"
		}
		if _, err := s.appendChange(ctx, tx, after.AutomatonID, model.ChangeTestUpdate,
			fmt.Sprintf("%s test %s", verb, after.Name),
			map[string]bool{"active": before.Active}, map[string]bool{"active": active}, actor); err != nil {
			return err
		}
		t = after
		return nil
	})
	if err != nil {
		return model.Test{}, fmt.Errorf("registry: set test active: %w", err)
	}
	return t, nil
}

// RemoveTest deletes a test. Its recorded results are kept.
func (s *Service) RemoveTest(ctx context.Context, testID uuid.UUID, actor string) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveTest", uuid.Nil)
	defer func() { endSpan(span, err) }()

	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return err
	}
	owner, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("registry: remove test: %w", err)
	}

	err = s.store.WithAutomatonLock(ctx, owner.AutomatonID, func(tx storage.Tx, _ model.Automaton) error {
		t, err := tx.GetTest(ctx, testID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTest(ctx, testID); err != nil {
			return err
		}
		_, err = s.appendChange(ctx, tx, t.AutomatonID, model.ChangeTestRemove,
			fmt.Sprintf("removed test %s", t.Name), t, nil, actor)
		return err
	})
	if err != nil {
		return fmt.Errorf("registry: remove test: %w", err)
	}
	return nil
}
