package main

import (
	"errors"

	"github.com/RezaEskandarii/taskfire/internal/db"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Manage the job store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := loadContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.DB == nil {
				return errors.New("migrate needs the postgres storage driver")
			}
			return db.Migrate(ctx, c.DB, c.LockManager, c.Logger, command)
		},
	}
}
