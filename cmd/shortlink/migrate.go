package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/koopa0/shortlink/internal/config"
	"github.com/koopa0/shortlink/internal/storage/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL schema migrations",
		Long: `Apply or roll back the embedded PostgreSQL migrations.

The sqlite store manages its schema on open and needs no migrations.`,
	}

	run := func(op func(m *migrations.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations apply to the postgres store only (store.driver=%s)", a.cfg.Store.Driver)
			}
			return a.migrate(op)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  run(func(m *migrations.Migrator) error { return m.Up() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE:  run(func(m *migrations.Migrator) error { return m.Down() }),
		},
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
	}
	versionCmd.RunE = run(func(m *migrations.Migrator) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(versionCmd.OutOrStdout(), "no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(versionCmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
		return nil
	})
	cmd.AddCommand(versionCmd)

	return cmd
}
