package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/server"
	pgstore "github.com/dwarvesf/treasury-settlement/internal/store/postgres"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

// runMigrations applies the shared-schema migrations. Tenant partitions are
// not migrated here; they are created per tenant at onboarding.
func runMigrations(db *gorm.DB, direction string, logger *logger.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	migrationPath := fmt.Sprintf("file://%s", filepath.Join("migrations", "schema"))
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		return fmt.Errorf("unknown direction %q, want up or down", direction)
	}
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations completed successfully", map[string]string{
		"direction": direction,
		"version":   fmt.Sprintf("%d", version),
		"dirty":     fmt.Sprintf("%t", dirty),
	})
	return nil
}

func main() {
	appConfig, logger, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	db := pgstore.New(appConfig, logger)

	if err := runMigrations(db, direction, logger); err != nil {
		logger.Error("[main][runMigrations] failed to run migrations", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
