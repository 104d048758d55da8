package registry_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/service/registry"
)

func TestRunSuite(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := registry.ExecutorFunc(func(_ context.Context, req registry.ExecutionRequest) (registry.ExecutionOutcome, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return registry.ExecutionOutcome{Passed: !strings.HasPrefix(req.Test.Name, "fail")}, nil
	})
	svc := newService(t, exec, registry.WithSuiteConcurrency(2))
	ctx := context.Background()
	a := mustAutomaton(t, svc, "booking-flow", "booking")
	v1 := mustVersion(t, svc, a.ID, "You book appointments.")

	for _, name := range []string{"pass 1", "pass 2", "pass 3", "fail 1", "skip 1"} {
		mustTest(t, svc, a.ID, name)
	}
	tests, err := svc.ListTests(ctx, a.ID, false)
	require.NoError(t, err)
	for _, tc := range tests {
		if tc.Name == "skip 1" {
			_, err := svc.SetTestActive(ctx, tc.ID, false, "ops")
			require.NoError(t, err)
		}
	}

	report, err := svc.RunSuite(ctx, registry.SuiteRequest{AutomatonID: a.ID, RecordPassRate: true})
	require.NoError(t, err)
	assert.Equal(t, v1.ID, report.Version.ID, "defaults to the current version")
	require.Len(t, report.Results, 5)
	assert.Equal(t, 3, report.Counts[model.TestStatusPassed])
	assert.Equal(t, 1, report.Counts[model.TestStatusFailed])
	assert.Equal(t, 1, report.Counts[model.TestStatusSkipped])
	assert.InDelta(t, 0.75, report.PassRate, 1e-9)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	require.NotNil(t, report.Metric)
	assert.Equal(t, registry.PassRateMetric, report.Metric.MetricType)
	assert.Equal(t, 4, report.Metric.SampleSize)
	require.NotNil(t, report.Metric.VersionID)
	assert.Equal(t, v1.ID, *report.Metric.VersionID)

	agg, err := svc.Aggregate(ctx, a.ID, registry.PassRateMetric, model.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Count)
	assert.InDelta(t, 0.75, agg.Mean, 1e-9)

	t.Run("explicit version", func(t *testing.T) {
		v2 := mustVersion(t, svc, a.ID, "You book appointments quickly.")
		report, err := svc.RunSuite(ctx, registry.SuiteRequest{AutomatonID: a.ID, VersionID: &v2.ID})
		require.NoError(t, err)
		assert.Equal(t, v2.ID, report.Version.ID)
		assert.Nil(t, report.Metric)
	})

	t.Run("version of another automaton", func(t *testing.T) {
		other := mustAutomaton(t, svc, "support", "support")
		ov := mustVersion(t, svc, other.ID, "You answer questions.")
		_, err := svc.RunSuite(ctx, registry.SuiteRequest{AutomatonID: a.ID, VersionID: &ov.ID})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}
