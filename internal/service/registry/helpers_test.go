package registry_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
	"github.com/ashita-ai/automata/internal/testutil"
)

// stepClock advances one second per reading so timestamps are strictly
// ordered.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T, exec registry.Executor, opts ...registry.Option) *registry.Service {
	t.Helper()
	store := testutil.NewSQLiteStore(t)
	opts = append([]registry.Option{registry.WithClock(newStepClock().Now)}, opts...)
	return registry.New(store, exec, testutil.TestLogger(), opts...)
}

func mustAutomaton(t *testing.T, svc *registry.Service, name, domain string) model.Automaton {
	t.Helper()
	a, err := svc.CreateAutomaton(context.Background(), model.CreateAutomatonRequest{
		Name:   name,
		Domain: domain,
		Actor:  "alice",
	})
	require.NoError(t, err)
	return a
}

func mustVersion(t *testing.T, svc *registry.Service, automatonID uuid.UUID, prompt string) model.Version {
	t.Helper()
	v, err := svc.CreateVersion(context.Background(), model.CreateVersionRequest{
		AutomatonID: automatonID,
		Prompt:      prompt,
		Actor:       "alice",
	})
	require.NoError(t, err)
	return v
}

func mustTest(t *testing.T, svc *registry.Service, automatonID uuid.UUID, name string) model.Test {
	t.Helper()
	tc, err := svc.DefineTest(context.Background(), model.DefineTestRequest{
		AutomatonID:    automatonID,
		Name:           name,
		Type:           model.TestTypeIntegration,
		Scenario:       json.RawMessage(`{"input":"book a haircut tomorrow at 10"}`),
		ExpectedResult: json.RawMessage(`{"booked":true}`),
	})
	require.NoError(t, err)
	return tc
}

func changeTypes(t *testing.T, svc *registry.Service, automatonID uuid.UUID) []model.ChangeType {
	t.Helper()
	changes, err := svc.History(context.Background(), model.ChangeFilter{AutomatonID: automatonID})
	require.NoError(t, err)
	out := make([]model.ChangeType, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.ChangeType)
	}
	return out
}

// passing always passes and echoes the expected result.
var passing = registry.ExecutorFunc(func(_ context.Context, req registry.ExecutionRequest) (registry.ExecutionOutcome, error) {
	return registry.ExecutionOutcome{Actual: req.Test.ExpectedResult, Passed: true}, nil
})

func collect(t *testing.T, svc *registry.Service, f model.ResultFilter) []model.TestResult {
	t.Helper()
	seq, err := svc.ListResults(context.Background(), f)
	require.NoError(t, err)
	var out []model.TestResult
	for r, err := range seq {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}
