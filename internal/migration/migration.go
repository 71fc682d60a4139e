package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
	subscriptiondomain "github.com/lumahq/lumina/internal/subscription/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the versioned SQL migrations. Postgres only; other
// dialects go through AutoMigrate so local and test setups work out of the
// box without a migration toolchain.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the model definitions.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.Entry{},
		&ratelimitdomain.Window{},
		&auditdomain.Record{},
		&subscriptiondomain.Subscription{},
	)
}
