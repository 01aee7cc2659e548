// Package migrations applies the SQL files in MIGRATIONS_DIR with golang-migrate.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"airline-booking/internal/config"
	"airline-booking/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SchemaVersion is the last migration that changes structure. Later
// versions only load sample flights.
const SchemaVersion uint = 2

var ErrDirNotFound = errors.New("migrations directory does not exist")

type Runner struct {
	DB       *sql.DB
	Options  config.MigrationsConfig
	Logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(db *sql.DB, opts config.MigrationsConfig, log *logger.Logger) *Runner {
	if opts.Dir == "" {
		opts.Dir = "./migrations"
	}
	return &Runner{DB: db, Options: opts, Logger: log}
}

func (r *Runner) init() error {
	if r.migrator != nil {
		return nil
	}
	if _, err := os.Stat(r.Options.Dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrDirNotFound, r.Options.Dir)
	}

	driver, err := postgres.WithInstance(r.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+r.Options.Dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	r.migrator = m
	return nil
}

// Run brings the schema up to date on startup. Sample data is only loaded
// when SEED_DATA is set. A dirty version is forced clean and retried once.
func (r *Runner) Run() error {
	if err := r.init(); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.Logger.Warn("DATABASE", fmt.Sprintf("Migration %d is dirty, forcing clean state", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if r.Options.SeedData {
		err = r.migrator.Up()
	} else if version < SchemaVersion {
		err = r.migrator.Migrate(SchemaVersion)
	} else {
		err = migrate.ErrNoChange
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if v, _, err := r.migrator.Version(); err == nil {
		r.Logger.LogDatabase("MIGRATE", "schema_migrations", fmt.Sprintf("schema at version %d", v))
	}
	return nil
}

func (r *Runner) Up() error {
	if err := r.init(); err != nil {
		return err
	}
	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back steps migrations; steps <= 0 rolls back everything.
func (r *Runner) Down(steps int) error {
	if err := r.init(); err != nil {
		return err
	}
	var err error
	if steps > 0 {
		err = r.migrator.Steps(-steps)
	} else {
		err = r.migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

func (r *Runner) To(version uint) error {
	if err := r.init(); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version returns 0 when no migration has been applied.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.init(); err != nil {
		return 0, false, err
	}
	v, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close also closes DB, so give the runner a connection pool of its own.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
