package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they are published to the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := loadContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.Broker == nil {
				return errors.New("watch needs the rabbitmq notification driver")
			}
			messages, err := c.Broker.Consume(ctx)
			if err != nil {
				return err
			}
			for msg := range messages {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(msg)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
