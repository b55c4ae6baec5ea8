package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migration runner: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// Up applies all pending migrations
func (r *MigrationRunner) Up() error {
	version, dirty, _ := r.migrate.Version()
	r.log.WithFields(logrus.Fields{
		"current_version": version,
		"dirty":           dirty,
	}).Info("Applying database migrations")

	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	newVersion, _, _ := r.migrate.Version()
	r.log.WithField("version", newVersion).Info("Database migrations applied")
	return nil
}

// Down rolls back the most recent migration
func (r *MigrationRunner) Down() error {
	if err := r.migrate.Steps(-1); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	r.log.Info("Rolled back one migration")
	return nil
}

// Version returns the current migration version
func (r *MigrationRunner) Version() (uint, bool, error) {
	return r.migrate.Version()
}

// Close releases the migration runner's resources
func (r *MigrationRunner) Close() error {
	sourceErr, dbErr := r.migrate.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}
