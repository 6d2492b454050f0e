package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/sqlstore"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	Long: `Manage the database schema of DATABASE_URL.

Examples:
  # Apply all pending migrations
  voltig-turbo migrate up

  # Roll back the last migration
  voltig-turbo migrate down --steps 1

  # Show the current schema version
  voltig-turbo migrate version`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *sqlstore.DB) error {
			if migrateSteps > 0 {
				return db.MigrateSteps(migrateSteps)
			}
			return db.Migrate()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (all of them unless --steps is set)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *sqlstore.DB) error {
			if migrateSteps > 0 {
				return db.MigrateSteps(-migrateSteps)
			}
			return db.MigrateDown()
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *sqlstore.DB) error {
			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (%s, %s)\n", version, state, db.Dialect())
			return nil
		})
	},
}

// withDatabase loads the configuration, opens the database and runs fn.
func withDatabase(cmd *cobra.Command, fn func(db *sqlstore.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := sqlstore.Open(ctx, cfg.Database.URL, sqlstore.Options{})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func init() {
	migrateCmd.PersistentFlags().IntVar(&migrateSteps, "steps", 0, "number of migrations to apply or roll back")
	migrateCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Use development defaults")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
