package main

import (
	"github.com/RezaEskandarii/taskfire/internal/db"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/RezaEskandarii/taskfire/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var (
		migrate   bool
		adminPort uint
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool, the overdue scan schedule and the admin server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var overrides []config.ConfigOption
			if adminPort > 0 {
				overrides = append(overrides, config.WithAdminServer(adminPort))
			}
			c, err := loadContainer(ctx, overrides...)
			if err != nil {
				return err
			}
			defer c.Close()

			if migrate && c.DB != nil {
				if err := db.Migrate(ctx, c.DB, c.LockManager, c.Logger, "up"); err != nil {
					return err
				}
			}

			if err := c.Scanner.Start(ctx); err != nil {
				return err
			}
			defer c.Scanner.Stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return c.Pool.Start(ctx)
			})
			if c.Config.EnableAdmin {
				admin := web.NewRouteHandler(c.JobStore, c.Metrics, c.Scanner, c.Logger, c.Config.AdminPort)
				g.Go(func() error {
					return admin.Serve(ctx)
				})
			}

			c.Logger.Info("taskfire started", "workers", c.Config.WorkerCount, "scan_schedule", c.Config.ScanSchedule)
			err = g.Wait()
			c.Logger.Info("taskfire stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")
	cmd.Flags().UintVar(&adminPort, "admin-port", 0, "serve the admin API on this port")
	return cmd
}
