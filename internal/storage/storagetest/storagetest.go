// Package storagetest is a conformance suite run against every registry
// store backend.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/integrity"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// Run exercises s. Each subtest creates its own automata, so s may be
// shared across subtests.
func Run(t *testing.T, s storage.Store) {
	t.Run("Automata", func(t *testing.T) { testAutomata(t, s) })
	t.Run("Versions", func(t *testing.T) { testVersions(t, s) })
	t.Run("Tools", func(t *testing.T) { testTools(t, s) })
	t.Run("Tests", func(t *testing.T) { testTests(t, s) })
	t.Run("ResultsPagination", func(t *testing.T) { testResultsPagination(t, s) })
	t.Run("ResultsOutliveOwners", func(t *testing.T) { testResultsOutliveOwners(t, s) })
	t.Run("Changes", func(t *testing.T) { testChanges(t, s) })
	t.Run("Metrics", func(t *testing.T) { testMetrics(t, s) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, s) })
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// NewAutomaton returns an automaton with a unique name.
func NewAutomaton(domain string) model.Automaton {
	ts := now()
	return model.Automaton{
		ID:        ids.New(),
		Name:      "automaton-" + uuid.NewString()[:8],
		Domain:    domain,
		Active:    true,
		Tags:      []string{},
		Metadata:  map[string]any{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// NewVersion returns version n of automaton a.
func NewVersion(a model.Automaton, n int, prompt string, current bool) model.Version {
	return model.Version{
		ID:            ids.New(),
		AutomatonID:   a.ID,
		VersionNumber: n,
		SystemPrompt:  prompt,
		PromptHash:    integrity.ComputePromptHash(prompt),
		IsCurrent:     current,
		CreatedBy:     "test",
		CreatedAt:     now(),
	}
}

func insert(t *testing.T, s storage.Store, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error { return fn(ctx, tx) }))
}

func mustAutomaton(t *testing.T, s storage.Store, domain string) model.Automaton {
	t.Helper()
	a := NewAutomaton(domain)
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.InsertAutomaton(ctx, a) })
	return a
}

func testAutomata(t *testing.T, s storage.Store) {
	ctx := context.Background()

	a := NewAutomaton("booking")
	a.Description = "books appointments"
	a.Tags = []string{"beta", "es"}
	a.Metadata = map[string]any{"owner": "ops"}
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.InsertAutomaton(ctx, a) })

	got, err := s.GetAutomaton(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, []string{"beta", "es"}, got.Tags)
	assert.Equal(t, "ops", got.Metadata["owner"])
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))

	byName, err := s.GetAutomatonByName(ctx, a.Name)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byName.ID)

	dup := NewAutomaton("other")
	dup.Name = a.Name
	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertAutomaton(ctx, dup) })
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = s.GetAutomaton(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	domain := "domain-" + uuid.NewString()[:8]
	inactive := NewAutomaton(domain)
	inactive.Active = false
	tagged := NewAutomaton(domain)
	tagged.Tags = []string{"vip"}
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertAutomaton(ctx, inactive); err != nil {
			return err
		}
		return tx.InsertAutomaton(ctx, tagged)
	})

	all, err := s.ListAutomata(ctx, model.AutomatonFilter{Domain: domain})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.ListAutomata(ctx, model.AutomatonFilter{Domain: domain, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, tagged.ID, active[0].ID)

	vip, err := s.ListAutomata(ctx, model.AutomatonFilter{Domain: domain, Tag: "vip"})
	require.NoError(t, err)
	require.Len(t, vip, 1)
	assert.Equal(t, tagged.ID, vip[0].ID)

	tagged.Description = "updated"
	tagged.UpdatedAt = now()
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateAutomaton(ctx, tagged) })
	got, err = s.GetAutomaton(ctx, tagged.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.DeleteAutomaton(ctx, inactive.ID) })
	_, err = s.GetAutomaton(ctx, inactive.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.DeleteAutomaton(ctx, inactive.ID) })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testVersions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")

	_, err := s.GetCurrentVersion(ctx, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	v1 := NewVersion(a, 1, "Greet and ask for date", true)
	v2 := NewVersion(a, 2, "Greet, ask for date and time", false)
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertVersion(ctx, v1); err != nil {
			return err
		}
		return tx.InsertVersion(ctx, v2)
	})

	dupNumber := NewVersion(a, 2, "anything", false)
	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertVersion(ctx, dupNumber) })
	assert.ErrorIs(t, err, apperrors.ErrConflict, "version numbers are unique per automaton")

	secondCurrent := NewVersion(a, 3, "second current", true)
	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertVersion(ctx, secondCurrent) })
	assert.ErrorIs(t, err, apperrors.ErrConflict, "at most one current version")

	orphan := NewVersion(model.Automaton{ID: uuid.New()}, 1, "orphan", false)
	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertVersion(ctx, orphan) })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	cur, err := s.GetCurrentVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, cur.ID)

	latest, err := s.GetLatestVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.SetCurrentVersion(ctx, a.ID, v2.ID) })
	cur, err = s.GetCurrentVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, cur.ID)

	versions, err := s.ListVersions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)
	assert.False(t, versions[0].IsCurrent)
	assert.True(t, versions[1].IsCurrent)
	assert.Equal(t, v1.PromptHash, versions[0].PromptHash)

	other := mustAutomaton(t, s, "booking")
	err = s.WithTx(ctx, func(tx storage.Tx) error { return tx.SetCurrentVersion(ctx, other.ID, v1.ID) })
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testTools(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")
	ts := now()

	mk := func(name string, required bool) model.Tool {
		return model.Tool{
			ID: ids.New(), AutomatonID: a.ID, Name: name,
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"date":{"type":"string"}}}`),
			OutputSchema: json.RawMessage(`{}`),
			Required:     required, CreatedAt: ts, UpdatedAt: ts,
		}
	}
	check := mk("check_availability", true)
	book := mk("book_appointment", false)
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertTool(ctx, check); err != nil {
			return err
		}
		return tx.InsertTool(ctx, book)
	})

	err := s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertTool(ctx, mk("book_appointment", true)) })
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	tools, err := s.ListTools(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "book_appointment", tools[0].Name)
	assert.Equal(t, "check_availability", tools[1].Name)
	assert.JSONEq(t, string(check.InputSchema), string(tools[1].InputSchema))

	required, err := s.ListTools(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, required, 1)
	assert.Equal(t, "check_availability", required[0].Name)

	book.Required = true
	book.Description = "books a slot"
	book.UpdatedAt = now()
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateTool(ctx, book) })
	got, err := s.GetTool(ctx, a.ID, "book_appointment")
	require.NoError(t, err)
	assert.True(t, got.Required)
	assert.Equal(t, "books a slot", got.Description)

	var removed bool
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		var err error
		removed, err = tx.DeleteTool(ctx, a.ID, "book_appointment")
		return err
	})
	assert.True(t, removed)
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		var err error
		removed, err = tx.DeleteTool(ctx, a.ID, "book_appointment")
		return err
	})
	assert.False(t, removed)

	_, err = s.GetTool(ctx, a.ID, "book_appointment")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func newTest(a model.Automaton, name string) model.Test {
	ts := now()
	return model.Test{
		ID: ids.New(), AutomatonID: a.ID, Name: name, Type: model.TestTypeIntegration,
		Scenario:       json.RawMessage(`{"calls":[{"name":"check_availability","arguments":{"date":"2026-03-01"}}]}`),
		ExpectedResult: json.RawMessage(`{"ok":true}`),
		Active:         true, CreatedAt: ts, UpdatedAt: ts,
	}
}

func testTests(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")

	flow := newTest(a, "booking-flow")
	smoke := newTest(a, "smoke")
	smoke.ExpectedResult = nil
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertTest(ctx, flow); err != nil {
			return err
		}
		return tx.InsertTest(ctx, smoke)
	})

	err := s.WithTx(ctx, func(tx storage.Tx) error { return tx.InsertTest(ctx, newTest(a, "smoke")) })
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := s.GetTest(ctx, smoke.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ExpectedResult)
	assert.Equal(t, model.TestTypeIntegration, got.Type)
	assert.JSONEq(t, string(smoke.Scenario), string(got.Scenario))

	smoke.Active = false
	smoke.UpdatedAt = now()
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateTest(ctx, smoke) })

	active, err := s.ListTests(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, flow.ID, active[0].ID)

	all, err := s.ListTests(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.DeleteTest(ctx, smoke.ID) })
	_, err = s.GetTest(ctx, smoke.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func newResult(test model.Test, v *model.Version, status model.TestStatus, at time.Time) model.TestResult {
	r := model.TestResult{
		ID: ids.New(), TestID: test.ID, AutomatonID: test.AutomatonID, Status: status,
		ActualResult:  json.RawMessage(`{"ok":true}`),
		ExecutionTime: 15 * time.Millisecond,
		ExecutedAt:    at,
	}
	if v != nil {
		id := v.ID
		r.VersionID = &id
	}
	return r
}

func testResultsPagination(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")
	test := newTest(a, "paged")
	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.InsertTest(ctx, test) })

	base := now().Add(-time.Hour)
	var want []model.TestResult
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		for i := range 7 {
			// Pairs share a timestamp so ties are broken by id.
			status := model.TestStatusPassed
			if i%3 == 0 {
				status = model.TestStatusFailed
			}
			r := newResult(test, nil, status, base.Add(time.Duration(i/2)*time.Second))
			if err := tx.InsertTestResult(ctx, r); err != nil {
				return err
			}
			want = append(want, r)
		}
		return nil
	})

	filter := model.ResultFilter{TestID: &test.ID}
	var got []model.TestResult
	var cursor *model.ResultCursor
	for {
		page, err := s.ListTestResults(ctx, filter, cursor, 3)
		require.NoError(t, err)
		got = append(got, page...)
		if len(page) < 3 {
			break
		}
		c := model.CursorOf(page[len(page)-1])
		cursor = &c
	}
	require.Len(t, got, len(want))
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		ordered := prev.ExecutedAt.After(cur.ExecutedAt) ||
			(prev.ExecutedAt.Equal(cur.ExecutedAt) && prev.ID.String() > cur.ID.String())
		assert.True(t, ordered, "results %d and %d out of order", i-1, i)
	}

	failed, err := s.ListTestResults(ctx, model.ResultFilter{TestID: &test.ID, Status: model.TestStatusFailed}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 3)

	since := base.Add(2 * time.Second)
	recent, err := s.ListTestResults(ctx, model.ResultFilter{AutomatonID: &a.ID, Since: &since}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	_, err = s.ListTestResults(ctx, model.ResultFilter{}, nil, 10)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func testResultsOutliveOwners(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")
	v := NewVersion(a, 1, "prompt", true)
	test := newTest(a, "survivor")
	r := newResult(test, &v, model.TestStatusPassed, now())
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertVersion(ctx, v); err != nil {
			return err
		}
		if err := tx.InsertTest(ctx, test); err != nil {
			return err
		}
		return tx.InsertTestResult(ctx, r)
	})

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.DeleteTest(ctx, test.ID) })
	byTest, err := s.ListTestResults(ctx, model.ResultFilter{TestID: &test.ID}, nil, 0)
	require.NoError(t, err)
	require.Len(t, byTest, 1)
	require.NotNil(t, byTest[0].VersionID)
	assert.Equal(t, v.ID, *byTest[0].VersionID)

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.DeleteAutomaton(ctx, a.ID) })
	byAutomaton, err := s.ListTestResults(ctx, model.ResultFilter{AutomatonID: &a.ID}, nil, 0)
	require.NoError(t, err)
	require.Len(t, byAutomaton, 1, "results survive automaton deletion")
	assert.Equal(t, r.ID, byAutomaton[0].ID)
	assert.Nil(t, byAutomaton[0].VersionID, "version reference is cleared, not cascaded")
	assert.Equal(t, model.TestStatusPassed, byAutomaton[0].Status)
	assert.Equal(t, 15*time.Millisecond, byAutomaton[0].ExecutionTime)

	_, err = s.GetVersion(ctx, v.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func newChange(a model.Automaton, ct model.ChangeType, at time.Time) model.Change {
	c := model.Change{
		ID: ids.New(), AutomatonID: a.ID, ChangeType: ct,
		Description: string(ct),
		After:       json.RawMessage(`{"b": 2, "a": 1}`),
		Actor:       "test",
		CreatedAt:   at,
	}
	c.ContentHash = integrity.ComputeChangeHash(c)
	return c
}

func testChanges(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")
	base := now().Add(-time.Minute)

	changes := []model.Change{
		newChange(a, model.ChangeAutomatonCreate, base),
		newChange(a, model.ChangePromptUpdate, base.Add(time.Second)),
		newChange(a, model.ChangeToolAdd, base.Add(2*time.Second)),
	}
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		// Insert out of order; reads are chronological regardless.
		for _, i := range []int{2, 0, 1} {
			if err := tx.InsertChange(ctx, changes[i]); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.ListChanges(ctx, model.ChangeFilter{AutomatonID: a.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, changes[i].ID, c.ID)
		assert.True(t, integrity.VerifyChangeHash(c), "stored change %d must still verify", i)
	}
	assert.JSONEq(t, `{"a":1,"b":2}`, string(got[0].After))
	assert.Nil(t, got[0].Before)

	since := base.Add(time.Second)
	windowed, err := s.ListChanges(ctx, model.ChangeFilter{AutomatonID: a.ID, Since: &since, Until: &since})
	require.NoError(t, err)
	require.Len(t, windowed, 1, "bounds are inclusive")
	assert.Equal(t, model.ChangePromptUpdate, windowed[0].ChangeType)

	limited, err := s.ListChanges(ctx, model.ChangeFilter{AutomatonID: a.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, changes[1].ID, limited[0].ID, "a limit keeps the newest entries")
	assert.Equal(t, changes[2].ID, limited[1].ID)

	byType, err := s.ListChanges(ctx, model.ChangeFilter{AutomatonID: a.ID, ChangeType: model.ChangeToolAdd})
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	insert(t, s, func(ctx context.Context, tx storage.Tx) error { return tx.DeleteAutomaton(ctx, a.ID) })
	gone, err := s.ListChanges(ctx, model.ChangeFilter{AutomatonID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, gone, "changes cascade with the automaton")
}

func testMetrics(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := mustAutomaton(t, s, "booking")
	v1 := NewVersion(a, 1, "one", true)
	v2 := NewVersion(a, 2, "two", false)
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	mk := func(v *model.Version, value float64, at time.Time) model.Metric {
		m := model.Metric{
			ID: ids.New(), AutomatonID: a.ID, MetricType: "accuracy", Value: value,
			Unit: "ratio", EvaluationDate: at, SampleSize: 100,
			Metadata: map[string]any{"suite": "nightly"}, CreatedAt: now(),
		}
		if v != nil {
			id := v.ID
			m.VersionID = &id
		}
		return m
	}
	insert(t, s, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertVersion(ctx, v1); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, v2); err != nil {
			return err
		}
		for _, m := range []model.Metric{
			mk(&v1, 0.90, day),
			mk(&v1, 0.94, day.Add(24*time.Hour)),
			mk(&v2, 0.98, day.Add(48*time.Hour)),
			mk(nil, 0.50, day.Add(72*time.Hour)),
		} {
			if err := tx.InsertMetric(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})

	from, to := day, day.Add(24*time.Hour)
	agg, err := s.AggregateMetrics(ctx, model.MetricFilter{
		AutomatonID: a.ID, MetricType: "accuracy", Range: model.DateRange{From: &from, To: &to},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.Count)
	assert.InDelta(t, 0.92, agg.Mean, 1e-9)
	assert.InDelta(t, 0.90, agg.Min, 1e-9)
	assert.InDelta(t, 0.94, agg.Max, 1e-9)

	empty, err := s.AggregateMetrics(ctx, model.MetricFilter{AutomatonID: a.ID, MetricType: "latency"})
	require.NoError(t, err)
	assert.Equal(t, model.MetricAggregate{}, empty)

	byVersion, err := s.AggregateMetricsByVersion(ctx, model.MetricFilter{AutomatonID: a.ID, MetricType: "accuracy"})
	require.NoError(t, err)
	require.Len(t, byVersion, 3)
	assert.Nil(t, byVersion[0].VersionID)
	require.NotNil(t, byVersion[1].VersionID)
	assert.Equal(t, v1.ID, *byVersion[1].VersionID)
	assert.Equal(t, int64(2), byVersion[1].Count)
	assert.Equal(t, v2.ID, *byVersion[2].VersionID)

	listed, err := s.ListMetrics(ctx, model.MetricFilter{AutomatonID: a.ID, VersionID: &v1.ID})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].EvaluationDate.Equal(day))
	assert.Equal(t, "nightly", listed[0].Metadata["suite"])
	assert.Equal(t, 100, listed[0].SampleSize)
}

var errAbort = errors.New("abort")

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()

	a := NewAutomaton("booking")
	err := s.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertAutomaton(ctx, a); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	_, err = s.GetAutomaton(ctx, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "rolled back")

	err = s.WithAutomatonLock(ctx, uuid.New(), func(storage.Tx, model.Automaton) error {
		return fmt.Errorf("must not run")
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	b := mustAutomaton(t, s, "booking")
	var seen model.Automaton
	require.NoError(t, s.WithAutomatonLock(ctx, b.ID, func(tx storage.Tx, locked model.Automaton) error {
		seen = locked
		return tx.InsertVersion(ctx, NewVersion(locked, 1, "locked write", true))
	}))
	assert.Equal(t, b.ID, seen.ID)
	_, err = s.GetCurrentVersion(ctx, b.ID)
	assert.NoError(t, err)
}
