package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omegagate/internal/config"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// migrateCmd applies pending embedded migrations and reports the applied
// set. Migrations are forward-only (§7), so there is no down subcommand —
// grounded on the shape of the teacher's cmd/migrate.go up/version
// subcommands, not its golang-migrate engine, which assumes a down
// migration source this binary doesn't carry.
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply any pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateVersion()
		},
	})
	return cmd
}

func openStoreForMigrate() (*store.Store, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(context.Background(), store.Config{Path: cfg.Memory.DBPath})
}

func runMigrateUp() error {
	st, err := openStoreForMigrate()
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Println("migrations applied")
	return nil
}

func runMigrateVersion() error {
	st, err := openStoreForMigrate()
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := store.AppliedMigrations(context.Background(), st.DB())
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("no migrations applied")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
