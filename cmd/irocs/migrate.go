package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/db"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the model database schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrations(func(cmd *cobra.Command, database *db.DB, args []string) error {
			m, err := db.MigrationsFS()
			if err != nil {
				return err
			}
			return database.MigrateUp(m)
		}),
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withMigrations(func(cmd *cobra.Command, database *db.DB, args []string) error {
			m, err := db.MigrationsFS()
			if err != nil {
				return err
			}
			return database.MigrateDown(m)
		}),
	}
	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current and latest schema versions",
		Args:  cobra.NoArgs,
		RunE:  withMigrations(printMigrationStatus),
	}
	migrateForceCmd = &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations (recovers a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrations(func(cmd *cobra.Command, database *db.DB, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			m, err := db.MigrationsFS()
			if err != nil {
				return err
			}
			return database.MigrateForce(m, v)
		}),
	}
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd, migrateForceCmd)
}

// withMigrations opens the database without migrating it and runs fn.
func withMigrations(fn func(*cobra.Command, *db.DB, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := db.OpenDB(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := fn(cmd, database, args); err != nil {
			return err
		}
		if cmd.Name() != "status" {
			return printMigrationStatus(cmd, database, args)
		}
		return nil
	}
}

func printMigrationStatus(cmd *cobra.Command, database *db.DB, args []string) error {
	m, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	version, dirty, err := database.MigrateVersion(m)
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d", version, latest)
	if dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
