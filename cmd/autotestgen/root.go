package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nobodyplayer/byte5-autotestgen/internal/config"
	"github.com/nobodyplayer/byte5-autotestgen/internal/genclient"
	"github.com/nobodyplayer/byte5-autotestgen/internal/history"
	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	serverURL  string
	historyDB  string
	logLevel   string
}

// app is filled in by the root command before any subcommand runs.
var app struct {
	cfg    *config.Config
	logger *logging.Logger
	fs     afero.Fs
}

var rootCmd = &cobra.Command{
	Use:   "autotestgen",
	Short: "Generate test cases from a PRD and recover them from the streamed output",
	Long: "autotestgen sends a PRD (text, images or a Feishu link) to the generation service,\n" +
		"prints the markdown as it streams, and recovers structured test cases once it ends.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: loadApp,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Path to autotestgen.yaml")
	f.StringVar(&rootFlags.serverURL, "server", "", "Generation service base URL")
	f.StringVar(&rootFlags.historyDB, "history-db", "", "SQLite run history path (\"off\" disables history)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.Version = version
}

func loadApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = rootFlags.serverURL
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = rootFlags.historyDB
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = rootFlags.logLevel
	}
	app.cfg = cfg
	app.logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	if app.fs == nil {
		app.fs = afero.NewOsFs()
	}
	app.logger.Sugar().Debugf("%s: server %s, history %q", cmd.CommandPath(), cfg.ServerURL, cfg.HistoryDB)
	return nil
}

func newClient() *genclient.Client {
	return genclient.NewClient(app.cfg.ServerURL)
}

// openHistory returns nil when history is disabled.
func openHistory() (*history.Store, error) {
	if app.cfg.HistoryDB == "" || app.cfg.HistoryDB == "off" {
		return nil, nil
	}
	return history.Open(app.cfg.HistoryDB)
}
