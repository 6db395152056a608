package database

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationDatabaseURL reads the database URL straight from the environment so
// migrations can run without the rest of the service configuration.
func migrationDatabaseURL() string {
	return ConstructDatabaseURL(os.Getenv("DATABASE_URL"), os.Getenv("DATABASE_NAME"))
}

// MigrateUp runs all pending migrations
func MigrateUp() error {
	databaseURL := migrationDatabaseURL()
	log.WithField("url", redactURL(databaseURL)).Info("Running migrations")

	return withMigrate(databaseURL, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No new migrations to apply")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		version, _, _ := m.Version()
		log.WithField("version", version).Info("Migrations applied")
		return nil
	})
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(stepsStr string) error {
	steps, err := strconv.Atoi(stepsStr)
	if err != nil {
		return fmt.Errorf("invalid steps value: %w", err)
	}
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	return withMigrate(migrationDatabaseURL(), func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}

		version, _, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info("Rolled back all migrations")
			return nil
		}
		log.WithField("version", version).Info("Rolled back migrations")
		return nil
	})
}

// MigrateStatus logs the current migration version
func MigrateStatus() error {
	return withMigrate(migrationDatabaseURL(), func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations have been applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}

		log.WithFields(log.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Current migration status")
		return nil
	})
}

// RunMigrationsWithURL runs all pending migrations against databaseURL.
// Test containers use it with their generated connection strings.
func RunMigrationsWithURL(databaseURL string) error {
	return withMigrate(databaseURL, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

func withMigrate(databaseURL string, fn func(m *migrate.Migrate) error) error {
	m, err := newMigrate(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}

// newMigrate builds a migrate instance over the embedded SQL files, reusing
// pgx for the connection.
func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*config.ConnConfig)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

func redactURL(databaseURL string) string {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return "<unparseable>"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", config.ConnConfig.User, config.ConnConfig.Host, config.ConnConfig.Port, config.ConnConfig.Database)
}
