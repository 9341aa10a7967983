package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one overdue scan now and print how many jobs it queued",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := loadContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Scanner.Trigger(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
}
