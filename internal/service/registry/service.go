// Package registry is the automaton registry: version management, the tool
// catalog, the test suite, evaluation metrics and the change ledger.
//
// Every structural mutation runs in one store transaction that holds the
// automaton lock and appends its Change in that same transaction, so a
// mutation and its audit entry commit together or not at all. Test results
// and metrics are recorded independently and reference the version they
// ran against.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/automata/internal/storage"
	"github.com/ashita-ai/automata/internal/telemetry"
)

const (
	DefaultTestTimeout      = 30 * time.Second
	DefaultPersistTimeout   = 5 * time.Second
	DefaultSuiteConcurrency = 4
	DefaultResultPageSize   = 100
)

// Service implements the registry operations on top of a storage.Store.
// It is safe for concurrent use.
type Service struct {
	store    storage.Store
	executor Executor
	logger   *slog.Logger
	clock    func() time.Time

	testTimeout      time.Duration
	persistTimeout   time.Duration
	suiteConcurrency int
	resultPageSize   int

	tracer          trace.Tracer
	versionsCreated metric.Int64Counter
	promotions      metric.Int64Counter
	testResults     metric.Int64Counter
	testDuration    metric.Float64Histogram
}

// Option configures a Service.
type Option func(*Service)

// WithTestTimeout bounds a single test execution.
func WithTestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.testTimeout = d
		}
	}
}

// WithPersistTimeout bounds the detached write that records a result after
// the caller's context was cancelled.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithSuiteConcurrency caps how many tests RunSuite executes at once.
func WithSuiteConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.suiteConcurrency = n
		}
	}
}

// WithResultPageSize sets how many results ListResults fetches per query.
func WithResultPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resultPageSize = n
		}
	}
}

// WithClock replaces time.Now for timestamps written to the store.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New creates a Service. exec may be nil, in which case every active test
// run is recorded with status error.
func New(store storage.Store, exec Executor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:            store,
		executor:         exec,
		logger:           logger,
		clock:            time.Now,
		testTimeout:      DefaultTestTimeout,
		persistTimeout:   DefaultPersistTimeout,
		suiteConcurrency: DefaultSuiteConcurrency,
		resultPageSize:   DefaultResultPageSize,
		tracer:           telemetry.Tracer("automata/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := telemetry.Meter("automata/registry")
	s.versionsCreated, _ = meter.Int64Counter("automata.versions.created",
		metric.WithDescription("Versions created"),
	)
	s.promotions, _ = meter.Int64Counter("automata.versions.promoted",
		metric.WithDescription("Version promotions"),
	)
	s.testResults, _ = meter.Int64Counter("automata.test_results",
		metric.WithDescription("Test results recorded, by status"),
	)
	s.testDuration, _ = meter.Float64Histogram("automata.test.duration",
		metric.WithDescription("Test execution time (ms)"),
		metric.WithUnit("ms"),
	)
	return s
}

// now returns the current time at the precision both backends store.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, op string, automatonID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "registry."+op)
	if automatonID != uuid.Nil {
		span.SetAttributes(attribute.String("automata.automaton_id", automatonID.String()))
	}
	return ctx, span
}

// snapshot encodes v for a change's before/after field. nil means no
// snapshot.
func snapshot(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return x, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("registry: encode snapshot: %w", err)
	}
	return b, nil
}

func endSpan(span trace.Span, err error) { telemetry.EndSpan(span, err) }
