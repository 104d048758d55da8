package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// DeclareTool adds or updates a tool contract by (automaton, name).
// Re-declaring an identical contract returns the stored tool unchanged.
func (s *Service) DeclareTool(ctx context.Context, req model.DeclareToolRequest) (t model.Tool, err error) {
	ctx, span := s.startSpan(ctx, "DeclareTool", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	if err := model.ValidateIdentifier("name", req.Name); err != nil {
		return model.Tool{}, err
	}
	if err := model.ValidateText("description", req.Description, model.MaxDescriptionLen, false); err != nil {
		return model.Tool{}, err
	}
	in, err := model.NormalizeSchema("input_schema", req.InputSchema)
	if err != nil {
		return model.Tool{}, err
	}
	out, err := model.NormalizeSchema("output_schema", req.OutputSchema)
	if err != nil {
		return model.Tool{}, err
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Tool{}, err
	}

	declared := model.Tool{
		AutomatonID:  req.AutomatonID,
		Name:         req.Name,
		Description:  req.Description,
		InputSchema:  in,
		OutputSchema: out,
		Required:     req.Required,
	}

	err = s.store.WithAutomatonLock(ctx, req.AutomatonID, func(tx storage.Tx, a model.Automaton) error {
		existing, err := tx.GetTool(ctx, a.ID, req.Name)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			now := s.now()
			declared.ID = ids.New()
			declared.CreatedAt = now
			declared.UpdatedAt = now
			if err := tx.InsertTool(ctx, declared); err != nil {
				return err
			}
			if _, err := s.appendChange(ctx, tx, a.ID, model.ChangeToolAdd,
				fmt.Sprintf("added tool %s", declared.Name), nil, declared, actor); err != nil {
				return err
			}
			t = declared
			return nil
		case err != nil:
			return err
		}

		if existing.SameContract(declared) {
			t = existing
			return nil
		}
		declared.ID = existing.ID
		declared.CreatedAt = existing.CreatedAt
		declared.UpdatedAt = s.now()
		if err := tx.UpdateTool(ctx, declared); err != nil {
			return err
		}
		if _, err := s.appendChange(ctx, tx, a.ID, model.ChangeToolModify,
			fmt.Sprintf("modified tool %s", declared.Name), existing, declared, actor); err != nil {
			return err
		}
		t = declared
		return nil
	})
	if err != nil {
		return model.Tool{}, fmt.Errorf("registry: declare tool: %w", err)
	}
	return t, nil
}

// RemoveTool deletes a tool contract. Removing a tool that does not exist
// is a no-op.
func (s *Service) RemoveTool(ctx context.Context, automatonID uuid.UUID, name, actor string) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveTool", automatonID)
	defer func() { endSpan(span, err) }()

	if err := model.ValidateIdentifier("name", name); err != nil {
		return err
	}
	actor, err = model.NormalizeActor(actor)
	if err != nil {
		return err
	}

	err = s.store.WithAutomatonLock(ctx, automatonID, func(tx storage.Tx, a model.Automaton) error {
		existing, err := tx.GetTool(ctx, a.ID, name)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		removed, err := tx.DeleteTool(ctx, a.ID, name)
		if err != nil || !removed {
			return err
		}
		_, err = s.appendChange(ctx, tx, a.ID, model.ChangeToolRemove,
			fmt.Sprintf("removed tool %s", name), existing, nil, actor)
		return err
	})
	if err != nil {
		return fmt.Errorf("registry: remove tool: %w", err)
	}
	return nil
}

// ListTools returns an automaton's tools ordered by name.
func (s *Service) ListTools(ctx context.Context, automatonID uuid.UUID, requiredOnly bool) ([]model.Tool, error) {
	if _, err := s.store.GetAutomaton(ctx, automatonID); err != nil {
		return nil, fmt.Errorf("registry: list tools: %w", err)
	}
	tools, err := s.store.ListTools(ctx, automatonID, requiredOnly)
	if err != nil {
		return nil, fmt.Errorf("registry: list tools: %w", err)
	}
	return tools, nil
}
