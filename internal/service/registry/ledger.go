package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/integrity"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// appendChange writes a ledger entry inside tx, so it commits or rolls back
// with the mutation it describes.
func (s *Service) appendChange(ctx context.Context, tx storage.Tx, automatonID uuid.UUID, ct model.ChangeType, description string, before, after any, actor string) (model.Change, error) {
	b, err := snapshot(before)
	if err != nil {
		return model.Change{}, err
	}
	a, err := snapshot(after)
	if err != nil {
		return model.Change{}, err
	}
	c := model.Change{
		ID:          ids.New(),
		AutomatonID: automatonID,
		ChangeType:  ct,
		Description: description,
		Before:      model.CanonicalJSON(b),
		After:       model.CanonicalJSON(a),
		Actor:       actor,
		CreatedAt:   s.now(),
	}
	c.ContentHash = integrity.ComputeChangeHash(c)
	if err := tx.InsertChange(ctx, c); err != nil {
		return model.Change{}, err
	}
	return c, nil
}

// RecordChange appends a free-standing entry to an automaton's ledger.
func (s *Service) RecordChange(ctx context.Context, req model.RecordChangeRequest) (c model.Change, err error) {
	ctx, span := s.startSpan(ctx, "RecordChange", req.AutomatonID)
	defer func() { endSpan(span, err) }()

	if err := model.ValidateIdentifier("change_type", string(req.ChangeType)); err != nil {
		return model.Change{}, err
	}
	if err := model.ValidateText("description", req.Description, model.MaxDescriptionLen, false); err != nil {
		return model.Change{}, err
	}
	actor, err := model.NormalizeActor(req.Actor)
	if err != nil {
		return model.Change{}, err
	}

	err = s.store.WithAutomatonLock(ctx, req.AutomatonID, func(tx storage.Tx, _ model.Automaton) error {
		var err error
		c, err = s.appendChange(ctx, tx, req.AutomatonID, req.ChangeType, req.Description, req.Before, req.After, actor)
		return err
	})
	if err != nil {
		return model.Change{}, fmt.Errorf("registry: record change: %w", err)
	}
	return c, nil
}

// History returns an automaton's changes in chronological order.
func (s *Service) History(ctx context.Context, f model.ChangeFilter) ([]model.Change, error) {
	if f.AutomatonID == uuid.Nil {
		return nil, apperrors.Invalid("automaton_id", "is required")
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return nil, apperrors.Invalid("until", "must not be before since")
	}
	if f.Limit < 0 {
		return nil, apperrors.Invalid("limit", "must not be negative")
	}
	changes, err := s.store.ListChanges(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("registry: history: %w", err)
	}
	return changes, nil
}

// LedgerReport is the result of re-verifying an automaton's change ledger
// and version prompts.
type LedgerReport struct {
	AutomatonID uuid.UUID   `json:"automaton_id"`
	Entries     int         `json:"entries"`
	Mismatched  []uuid.UUID `json:"mismatched,omitempty"`
	Versions    int         `json:"versions"`
	// MismatchedVersions lists versions whose prompt no longer hashes to
	// their stored prompt_hash.
	MismatchedVersions []uuid.UUID `json:"mismatched_versions,omitempty"`
	// MerkleRoot covers the stored content hashes in chronological order.
	MerkleRoot string `json:"merkle_root"`
}

// OK reports whether every entry and version matched its stored hash.
func (r LedgerReport) OK() bool {
	return len(r.Mismatched) == 0 && len(r.MismatchedVersions) == 0
}

// VerifyLedger recomputes every change's content hash and every version's
// prompt hash, and reports the rows whose stored hash no longer matches.
func (s *Service) VerifyLedger(ctx context.Context, automatonID uuid.UUID) (report LedgerReport, err error) {
	ctx, span := s.startSpan(ctx, "VerifyLedger", automatonID)
	defer func() { endSpan(span, err) }()

	if _, err := s.store.GetAutomaton(ctx, automatonID); err != nil {
		return LedgerReport{}, fmt.Errorf("registry: verify ledger: %w", err)
	}
	changes, err := s.store.ListChanges(ctx, model.ChangeFilter{AutomatonID: automatonID})
	if err != nil {
		return LedgerReport{}, fmt.Errorf("registry: verify ledger: %w", err)
	}

	report = LedgerReport{AutomatonID: automatonID, Entries: len(changes)}
	leaves := make([]string, 0, len(changes))
	for _, c := range changes {
		if !integrity.VerifyChangeHash(c) {
			report.Mismatched = append(report.Mismatched, c.ID)
			s.logger.Warn("registry: change hash mismatch",
				"automaton_id", automatonID, "change_id", c.ID, "change_type", c.ChangeType)
		}
		leaves = append(leaves, c.ContentHash)
	}
	report.MerkleRoot = integrity.BuildMerkleRoot(leaves)

	versions, err := s.store.ListVersions(ctx, automatonID)
	if err != nil {
		return LedgerReport{}, fmt.Errorf("registry: verify ledger: %w", err)
	}
	report.Versions = len(versions)
	for _, v := range versions {
		if !integrity.VerifyPromptHash(v.PromptHash, v.SystemPrompt) {
			report.MismatchedVersions = append(report.MismatchedVersions, v.ID)
			s.logger.Warn("registry: prompt hash mismatch",
				"automaton_id", automatonID, "version_id", v.ID, "version", v.VersionNumber)
		}
	}
	return report, nil
}
