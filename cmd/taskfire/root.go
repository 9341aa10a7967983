package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/taskfire/app"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskfire",
		Short:         "Background jobs, caching and overdue scanning for the task service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(watchCmd())
	return rootCmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// loadContainer reads TASKFIRE_* variables and wires the application.
func loadContainer(ctx context.Context, opts ...config.ConfigOption) (*app.Container, error) {
	cfg, err := config.LoadFromEnv(opts...)
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg)
}
