// Package sqlite is the embedded registry store, built on modernc.org/sqlite.
//
// The database runs in WAL mode with foreign keys enforced. The pool is
// limited to one connection, so every transaction (and with it every
// structural mutation) is serialized.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type queries struct {
	q querier
}

var dialect = storage.Dialect{
	Placeholder: storage.QuestionPlaceholder,
	Encode:      storage.EncodeSQLite,
	TagMatch:    "EXISTS (SELECT 1 FROM json_each(tags) WHERE value = ?)",
}

// DB is the SQLite store.
type DB struct {
	queries
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

var _ storage.Store = (*DB)(nil)

type tx struct {
	queries
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if path == "" || strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("sqlite: a database file path is required, got %q", path)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// WAL allows concurrent readers but only one writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	return &DB{
		queries: queries{q: db},
		db:      db,
		dsn:     dsn,
		logger:  logger,
	}, nil
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the embedded SQLite migrations over a dedicated
// connection, which golang-migrate closes when done.
func (d *DB) Migrate(ctx context.Context) error {
	mdb, err := sql.Open("sqlite", d.dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open migration connection: %w", err)
	}
	mdb.SetMaxOpenConns(1)
	if err := mdb.PingContext(ctx); err != nil {
		_ = mdb.Close()
		return fmt.Errorf("sqlite: ping migration connection: %w", err)
	}
	driver, err := migratesqlite.WithInstance(mdb, &migratesqlite.Config{})
	if err != nil {
		_ = mdb.Close()
		return fmt.Errorf("sqlite: create migration driver: %w", err)
	}
	return storage.RunMigrations("sqlite", "sqlite", driver, d.logger)
}

// WithTx runs fn inside a transaction. fn must use only the Tx it is given:
// the single pooled connection is busy until fn returns.
func (d *DB) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			d.logger.Warn("sqlite: rollback", "error", err)
		}
	}()

	if err := fn(&tx{queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// WithAutomatonLock runs fn inside a transaction after confirming the
// automaton exists. Holding the only connection is the lock.
func (d *DB) WithAutomatonLock(ctx context.Context, automatonID uuid.UUID, fn func(storage.Tx, model.Automaton) error) error {
	return d.WithTx(ctx, func(t storage.Tx) error {
		a, err := t.GetAutomaton(ctx, automatonID)
		if err != nil {
			return err
		}
		return fn(t, a)
	})
}
