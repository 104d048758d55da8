// Package postgres is the PostgreSQL registry store, built on pgx.
//
// Queries run on a pgxpool.Pool; structural mutations run in transactions
// that lock the automaton row with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations

	"github.com/ashita-ai/automata/internal/model"
	"github.com/ashita-ai/automata/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds every read and write statement; DB runs them on the pool
// and tx inside a transaction.
type queries struct {
	q querier
}

var dialect = storage.Dialect{
	Placeholder: storage.DollarPlaceholder,
	TagMatch:    "? = ANY(tags)",
}

// DB is the Postgres store.
type DB struct {
	queries
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
}

var _ storage.Store = (*DB)(nil)

type tx struct {
	queries
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping pool: %w", err)
	}

	return &DB{
		queries: queries{q: pool},
		pool:    pool,
		dsn:     dsn,
		logger:  logger,
	}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Migrate applies the embedded Postgres migrations. golang-migrate closes
// the connection it is handed, so it gets its own database/sql handle.
func (db *DB) Migrate(ctx context.Context) error {
	sqlDB, err := sql.Open("pgx", db.dsn)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("postgres: ping migration connection: %w", err)
	}
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("postgres: create migration driver: %w", err)
	}
	return storage.RunMigrations("postgres", "pgx5", driver, db.logger)
}

// WithTx runs fn inside a transaction.
func (db *DB) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	pgTx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(&tx{queries{q: pgTx}}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// WithAutomatonLock runs fn inside a transaction holding a row lock on the
// automaton.
func (db *DB) WithAutomatonLock(ctx context.Context, automatonID uuid.UUID, fn func(storage.Tx, model.Automaton) error) error {
	return db.WithTx(ctx, func(t storage.Tx) error {
		a, err := t.(*tx).lockAutomaton(ctx, automatonID)
		if err != nil {
			return err
		}
		return fn(t, a)
	})
}
