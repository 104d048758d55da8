// Package storage defines the registry store contract shared by the
// Postgres and SQLite backends, plus the query-building and migration
// helpers both backends use.
//
// Backends return errors from internal/apperrors: missing rows are
// NotFoundError, unique and trigger violations and lost races are
// ConflictError, and every other driver failure is StorageError.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/model"
)

// Reader is the read side of the store. Reads take no locks.
type Reader interface {
	GetAutomaton(ctx context.Context, id uuid.UUID) (model.Automaton, error)
	GetAutomatonByName(ctx context.Context, name string) (model.Automaton, error)
	ListAutomata(ctx context.Context, f model.AutomatonFilter) ([]model.Automaton, error)

	GetVersion(ctx context.Context, id uuid.UUID) (model.Version, error)
	GetCurrentVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error)
	GetLatestVersion(ctx context.Context, automatonID uuid.UUID) (model.Version, error)
	// ListVersions returns versions in ascending version_number order.
	ListVersions(ctx context.Context, automatonID uuid.UUID) ([]model.Version, error)

	GetTool(ctx context.Context, automatonID uuid.UUID, name string) (model.Tool, error)
	// ListTools returns tools ordered by name.
	ListTools(ctx context.Context, automatonID uuid.UUID, requiredOnly bool) ([]model.Tool, error)

	GetTest(ctx context.Context, id uuid.UUID) (model.Test, error)
	// ListTests returns tests ordered by name.
	ListTests(ctx context.Context, automatonID uuid.UUID, activeOnly bool) ([]model.Test, error)

	// ListTestResults returns at most limit results ordered by
	// (executed_at, id) descending, starting strictly after the cursor when
	// one is given.
	ListTestResults(ctx context.Context, f model.ResultFilter, after *model.ResultCursor, limit int) ([]model.TestResult, error)

	// ListChanges returns changes in chronological order. With a limit it
	// returns the most recent f.Limit changes, still oldest first.
	ListChanges(ctx context.Context, f model.ChangeFilter) ([]model.Change, error)

	// ListMetrics returns metrics ordered by evaluation date.
	ListMetrics(ctx context.Context, f model.MetricFilter) ([]model.Metric, error)
	AggregateMetrics(ctx context.Context, f model.MetricFilter) (model.MetricAggregate, error)
	// AggregateMetricsByVersion groups by version, ordered by version
	// number with unversioned metrics first.
	AggregateMetricsByVersion(ctx context.Context, f model.MetricFilter) ([]model.VersionAggregate, error)
}

// Writer is the write side of the store. Writers are only reachable
// through a transaction.
type Writer interface {
	InsertAutomaton(ctx context.Context, a model.Automaton) error
	UpdateAutomaton(ctx context.Context, a model.Automaton) error
	// DeleteAutomaton removes the automaton and everything it owns.
	DeleteAutomaton(ctx context.Context, id uuid.UUID) error

	InsertVersion(ctx context.Context, v model.Version) error
	// SetCurrentVersion clears the current flag on the automaton's versions
	// and sets it on versionID.
	SetCurrentVersion(ctx context.Context, automatonID, versionID uuid.UUID) error

	InsertTool(ctx context.Context, t model.Tool) error
	UpdateTool(ctx context.Context, t model.Tool) error
	// DeleteTool reports whether a tool was removed.
	DeleteTool(ctx context.Context, automatonID uuid.UUID, name string) (bool, error)

	InsertTest(ctx context.Context, t model.Test) error
	UpdateTest(ctx context.Context, t model.Test) error
	DeleteTest(ctx context.Context, id uuid.UUID) error

	InsertTestResult(ctx context.Context, r model.TestResult) error
	InsertChange(ctx context.Context, c model.Change) error
	InsertMetric(ctx context.Context, m model.Metric) error
}

// Tx is a store transaction.
type Tx interface {
	Reader
	Writer
}

// Store is a registry backend.
type Store interface {
	Reader

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. fn's error is returned unchanged.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// WithAutomatonLock runs fn in a transaction that holds an exclusive
	// lock on the automaton row, serializing structural mutations of one
	// automaton. Returns NotFoundError when the automaton does not exist.
	WithAutomatonLock(ctx context.Context, automatonID uuid.UUID, fn func(Tx, model.Automaton) error) error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
