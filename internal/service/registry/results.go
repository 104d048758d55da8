package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/ids"
	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// ExecutionRequest is everything an Executor needs to run one test.
type ExecutionRequest struct {
	Automaton model.Automaton
	Version   model.Version
	Tools     []model.Tool
	Test      model.Test
}

// ExecutionOutcome is an executor's verdict. A zero Duration means the
// registry's own measurement is recorded.
type ExecutionOutcome struct {
	Actual   json.RawMessage
	Passed   bool
	Duration time.Duration
	// Detail explains a failure and is recorded as the result's message.
	Detail string
}

// Executor runs a test scenario against a version. The registry never
// interprets scenarios itself. Returning an error records status error;
// a failed comparison is Passed=false with a nil error.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionOutcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ExecutionRequest) (ExecutionOutcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, req ExecutionRequest) (ExecutionOutcome, error) {
	return f(ctx, req)
}

type execResult struct {
	out ExecutionOutcome
	err error
}

// RunTest executes a test against a version and records the result.
//
// A failing or erroring test is data: the persisted result is returned with
// a nil error. Inactive tests are recorded as skipped without invoking the
// executor. When ctx is cancelled or the run times out, an error result is
// still written on a detached context bounded by the persist timeout.
// Only lookup and storage failures are returned as errors.
func (s *Service) RunTest(ctx context.Context, testID, versionID uuid.UUID) (r model.TestResult, err error) {
	ctx, span := s.startSpan(ctx, "RunTest", uuid.Nil)
	defer func() { endSpan(span, err) }()

	req, err := s.executionRequest(ctx, testID, versionID)
	if err != nil {
		return model.TestResult{}, fmt.Errorf("registry: run test: %w", err)
	}
	span.SetAttributes(
		attribute.String("automata.automaton_id", req.Automaton.ID.String()),
		attribute.String("automata.test", req.Test.Name),
		attribute.Int("automata.version", req.Version.VersionNumber),
	)

	r = model.TestResult{
		ID:          ids.New(),
		TestID:      req.Test.ID,
		AutomatonID: req.Automaton.ID,
		VersionID:   &req.Version.ID,
	}
	if !req.Test.Active {
		r.Status = model.TestStatusSkipped
		r.ErrorMessage = "test is inactive"
	} else {
		s.execute(ctx, req, &r)
	}
	r.ExecutedAt = s.now()

	if err := s.persistResult(ctx, r); err != nil {
		return model.TestResult{}, fmt.Errorf("registry: run test: %w", err)
	}

	status := attribute.String("status", string(r.Status))
	s.testResults.Add(ctx, 1, metric.WithAttributes(status))
	if r.Status != model.TestStatusSkipped {
		s.testDuration.Record(ctx, float64(r.ExecutionTime.Microseconds())/1000, metric.WithAttributes(status))
	}
	s.logger.Debug("registry: test executed",
		"test_id", r.TestID, "version_id", versionID, "status", r.Status, "duration", r.ExecutionTime)
	return r, nil
}

func (s *Service) executionRequest(ctx context.Context, testID, versionID uuid.UUID) (ExecutionRequest, error) {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return ExecutionRequest{}, err
	}
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return ExecutionRequest{}, err
	}
	if v.AutomatonID != t.AutomatonID {
		return ExecutionRequest{}, apperrors.Conflict("version %s does not belong to the automaton of test %s", versionID, testID)
	}
	a, err := s.store.GetAutomaton(ctx, t.AutomatonID)
	if err != nil {
		return ExecutionRequest{}, err
	}
	tools, err := s.store.ListTools(ctx, a.ID, false)
	if err != nil {
		return ExecutionRequest{}, err
	}
	return ExecutionRequest{Automaton: a, Version: v, Tools: tools, Test: t}, nil
}

// execute runs the executor under the test timeout and fills in r's status,
// actual result, message and execution time.
func (s *Service) execute(ctx context.Context, req ExecutionRequest, r *model.TestResult) {
	if s.executor == nil {
		r.Status = model.TestStatusError
		r.ErrorMessage = "no executor configured"
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()

	done := make(chan execResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execResult{err: fmt.Errorf("executor panicked: %v", p)}
			}
		}()
		out, err := s.executor.Execute(runCtx, req)
		done <- execResult{out: out, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		res.err = runCtx.Err()
	}
	elapsed := time.Since(start)

	r.ExecutionTime = elapsed
	if res.out.Duration > 0 {
		r.ExecutionTime = res.out.Duration
	}

	switch {
	case res.err != nil:
		r.Status = model.TestStatusError
		r.ErrorMessage = s.describeRunError(ctx, runCtx, res.err)
	case model.ValidateJSON("actual_result", res.out.Actual, false) != nil:
		r.Status = model.TestStatusError
		r.ErrorMessage = "executor returned an actual result that is not valid JSON"
	default:
		r.ActualResult = model.CanonicalJSON(res.out.Actual)
		r.Status = model.TestStatusFailed
		if res.out.Passed {
			r.Status = model.TestStatusPassed
		}
		r.ErrorMessage = res.out.Detail
	}
}

func (s *Service) describeRunError(ctx, runCtx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return fmt.Sprintf("test run cancelled: %v", context.Cause(ctx))
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("test run timed out after %s", s.testTimeout)
	default:
		return err.Error()
	}
}

// persistResult writes r, detaching from ctx when it is already done so a
// cancelled run still leaves a record.
func (s *Service) persistResult(ctx context.Context, r model.TestResult) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
		defer cancel()
	}
	return s.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertTestResult(ctx, r)
	})
}

// ListResults returns the matching results, newest first. The filter is
// validated immediately; rows are fetched lazily in keyset pages as the
// sequence is consumed, and each range over it starts from the newest row.
func (s *Service) ListResults(ctx context.Context, f model.ResultFilter) (iter.Seq2[model.TestResult, error], error) {
	if err := storage.ValidateResultFilter(f); err != nil {
		return nil, err
	}
	pageSize := s.resultPageSize

	return func(yield func(model.TestResult, error) bool) {
		var after *model.ResultCursor
		for {
			page, err := s.store.ListTestResults(ctx, f, after, pageSize)
			if err != nil {
				yield(model.TestResult{}, fmt.Errorf("registry: list results: %w", err))
				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			c := model.CursorOf(page[len(page)-1])
			after = &c
		}
	}, nil
}
