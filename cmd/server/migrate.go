package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltplatform/volt-backend/internal/database"
	"github.com/voltplatform/volt-backend/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		logger.Info("migrations up to date")
		return nil
	},
}

// openDatabase opens the configured database and applies pending migrations
func openDatabase(ctx context.Context) (*sql.DB, error) {
	db, err := database.Open(database.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrationManager(db, logger.L()).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}
