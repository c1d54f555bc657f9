// Package migration applies the SQL schema of the analytics read model.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// DefaultPath is the migrations directory relative to the repository root
const DefaultPath = "migrations"

// Migrator applies the read-model migrations with golang-migrate
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// New creates a Migrator on an open connection pool. The migrator takes
// ownership of db: Close closes it.
func New(db *sql.DB, path string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL(path), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
	}
	return newMigrator(m, logger), nil
}

// NewFromURL creates a Migrator that opens its own connection to databaseURL
func NewFromURL(databaseURL, path string, logger *zap.Logger) (*Migrator, error) {
	m, err := migrate.New(sourceURL(path), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
	}
	return newMigrator(m, logger), nil
}

func newMigrator(m *migrate.Migrate, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{m: m, logger: logger.Named("migration")}
}

func sourceURL(path string) string {
	return "file://" + path
}

// Up applies every pending migration
func (mg *Migrator) Up() error {
	return mg.apply("up", mg.m.Up)
}

// Down reverts every applied migration
func (mg *Migrator) Down() error {
	return mg.apply("down", mg.m.Down)
}

// Steps applies n migrations forward, or -n backward when n is negative
func (mg *Migrator) Steps(n int) error {
	return mg.apply(fmt.Sprintf("steps %d", n), func() error { return mg.m.Steps(n) })
}

// apply runs op and logs the resulting schema version. Nothing to apply is not an error.
func (mg *Migrator) apply(name string, op func() error) error {
	mg.logger.Info("Applying migrations", zap.String("direction", name))

	if err := op(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Info("Schema already up to date", zap.String("direction", name))
			return nil
		}
		return fmt.Errorf("migration %s failed: %w", name, err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.logger.Info("Migrations applied",
		zap.String("direction", name),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version returns the applied schema version. An empty schema reports 0.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force records version as applied without running it, clearing the dirty flag
// left by a failed migration.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close releases the migration source and database driver
func (mg *Migrator) Close() error {
	sourceErr, dbErr := mg.m.Close()
	return errors.Join(sourceErr, dbErr)
}
