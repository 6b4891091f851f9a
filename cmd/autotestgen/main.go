// autotestgen is the command-line client for the test-case generation
// service.
//
// Usage:
//
//	autotestgen generate --prd-file prd.md --image ui.png --out out/
//	autotestgen recover --file output.md
//	autotestgen recover --run <run-id>
//	autotestgen history
//	autotestgen ping
package main

import (
	"context"
	"os"

	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/telemetry"
)

func main() {
	shutdown, err := telemetry.Setup(context.Background(), "autotestgen")
	if err != nil {
		logging.New("error").Sugar().Errorf("telemetry setup: %v", err)
		os.Exit(1)
	}
	err = rootCmd.Execute()
	_ = shutdown(context.Background())
	if err != nil {
		// app.logger is unset when loading the config failed.
		logger := app.logger
		if logger == nil {
			logger = logging.New("error")
		}
		logger.Sugar().Errorf("%s: %v", commandName(), err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func commandName() string {
	if cmd, _, err := rootCmd.Find(os.Args[1:]); err == nil {
		return cmd.CommandPath()
	}
	return rootCmd.Name()
}
