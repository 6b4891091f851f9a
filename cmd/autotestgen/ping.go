package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the generation service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newClient().Ping(cmd.Context()); err != nil {
			return fmt.Errorf("ping %s: %w", app.cfg.ServerURL, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", app.cfg.ServerURL)
		return nil
	},
}
