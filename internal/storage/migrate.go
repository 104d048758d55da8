package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ashita-ai/automata/migrations"
)

// RunMigrations applies every pending migration under dir of the embedded
// migrations filesystem through driver. It is idempotent. The driver (and
// the connection it wraps) is closed before returning.
func RunMigrations(dir, driverName string, driver database.Driver, logger *slog.Logger) error {
	src, err := iofs.New(migrations.FS, dir)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("storage: open migration source %s: %w", dir, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return fmt.Errorf("storage: create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("storage: close migration source", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("storage: close migration database", "error", dbErr)
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("storage: schema up to date", "backend", driverName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("storage: migrations applied", "backend", driverName, "version", version, "dirty", dirty)
	return nil
}
