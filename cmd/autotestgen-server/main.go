// autotestgen-server serves the test-case generation API backed by Claude.
//
// It needs ANTHROPIC_API_KEY; traces are exported when
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/afero"

	"github.com/nobodyplayer/byte5-autotestgen/internal/config"
	"github.com/nobodyplayer/byte5-autotestgen/internal/genserver"
	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to autotestgen.yaml")
		addr       = flag.String("addr", "", "Listen address (default from config)")
		uploadDir  = flag.String("upload-dir", "", "Directory for uploaded images")
		resultsDir = flag.String("results-dir", "", "Directory for exported spreadsheets")
		model      = flag.String("model", "", "Claude model ID")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("error").Error("load config failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	override(&cfg.Server.Addr, *addr)
	override(&cfg.Server.UploadDir, *uploadDir)
	override(&cfg.Server.ResultsDir, *resultsDir)
	override(&cfg.Server.Model, *model)
	override(&cfg.LogLevel, *logLevel)

	logger := logging.New(cfg.LogLevel)
	defer logger.Sync()
	fatal := func(msg string, err error) {
		logger.Error(msg, map[string]any{"error": err.Error()})
		_ = logger.Sync()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, "autotestgen-server")
	if err != nil {
		fatal("telemetry setup failed", err)
	}
	defer shutdown(context.Background())

	gen, err := genserver.NewAnthropicGeneratorFromEnv(cfg.Server.Model, cfg.Server.MaxTokens)
	if err != nil {
		fatal("generator setup failed", err)
	}

	fs := afero.NewOsFs()
	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.ResultsDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			fatal("create data dir failed", err)
		}
	}
	handler := genserver.NewServer(gen, fs, cfg.Server.UploadDir, cfg.Server.ResultsDir, genserver.WithLogger(logger))

	logger.Info("server listening", map[string]any{
		"addr":    cfg.Server.Addr,
		"uploads": cfg.Server.UploadDir,
		"results": cfg.Server.ResultsDir,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal("server failed", err)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
