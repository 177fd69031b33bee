package main

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session events from the configured bus",
	Long: `Stream session events from the configured bus.

Requires events.backend to be redis; the memory backend only carries events
inside a single process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := app.Watch(cmd.Context())
		if err != nil {
			return err
		}

		for event := range events {
			if err := printJSON(cmd.OutOrStdout(), event); err != nil {
				return err
			}
		}
		return nil
	},
}
