package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nobodyplayer/byte5-autotestgen/internal/recovery"
)

var recoverFlags struct {
	file  string
	runID string
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover test cases from a saved stream or a stored run",
	Args:  cobra.NoArgs,
	RunE:  runRecover,
}

func init() {
	f := recoverCmd.Flags()
	f.StringVar(&recoverFlags.file, "file", "", "File holding a raw generation stream")
	f.StringVar(&recoverFlags.runID, "run", "", "Run ID from the history store")
	recoverCmd.MarkFlagsMutuallyExclusive("file", "run")
	recoverCmd.MarkFlagsOneRequired("file", "run")
}

func runRecover(cmd *cobra.Command, _ []string) error {
	var text string
	switch {
	case recoverFlags.file != "":
		data, err := afero.ReadFile(app.fs, recoverFlags.file)
		if err != nil {
			return fmt.Errorf("read stream file: %w", err)
		}
		text = string(data)
	default:
		store, err := openHistory()
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		if store == nil {
			return errors.New("history is disabled; set --history-db")
		}
		defer store.Close()
		run, err := store.Get(cmd.Context(), recoverFlags.runID)
		if err != nil {
			return err
		}
		text = run.RawText
	}

	res, err := recovery.NewEngine(recovery.WithLogger(app.logger)).Extract(text)
	if err != nil {
		return err
	}
	blob, err := encodeResult(recoverFlags.runID, res)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(blob))
	return err
}
