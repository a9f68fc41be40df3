package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var (
		down    bool
		version int
		force   int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the resolution schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("version") {
				cfg.DatabaseMigrationVersion = version
			}
			if cmd.Flags().Changed("force") {
				cfg.DatabaseMigrationForce = force
			}

			a, err := newApp(cmd.Context(), cfg, root.logger, false)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return a.migrator(down).MigrateDB(a.db, cfg.DatabaseName)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back every migration")
	cmd.Flags().IntVar(&version, "version", 0, "Migrate to this version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "Force the recorded version before migrating")

	return cmd
}
