package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored generation runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Maximum runs to list")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if store == nil {
		return errors.New("history is disabled; set --history-db")
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), historyFlags.limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSTATE\tTIER\tRECORDS\tBYTES")
	for _, r := range runs {
		state := r.State
		if r.TransportError != "" {
			state += " (interrupted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), state, r.Tier, len(r.Records), len(r.RawText))
	}
	return tw.Flush()
}
