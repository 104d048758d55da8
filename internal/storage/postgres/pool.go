package postgres

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/automata/internal/telemetry"
)

// RegisterPoolMetrics registers observable gauges for connection pool
// health. Call it after telemetry.Init so the global meter provider is in
// place.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("automata/postgres")

	_, _ = meter.Int64ObservableGauge("automata.db.pool.acquired",
		metric.WithDescription("Connections currently in use"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().AcquiredConns()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("automata.db.pool.idle",
		metric.WithDescription("Idle connections in the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().IdleConns()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("automata.db.pool.total",
		metric.WithDescription("Total connections held by the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().TotalConns()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("automata.db.pool.empty_acquire_total",
		metric.WithDescription("Acquires that had to wait for a connection"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(db.pool.Stat().EmptyAcquireCount())
			return nil
		}),
	)
}
