package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nobodyplayer/byte5-autotestgen/internal/genclient"
	"github.com/nobodyplayer/byte5-autotestgen/internal/report"
	"github.com/nobodyplayer/byte5-autotestgen/internal/session"
)

var generateFlags struct {
	prdFile      string
	prdText      string
	images       []string
	feishuURL    string
	context      string
	requirements string
	out          string
	pdf          bool
	export       bool
	quiet        bool
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test cases and write the recovered records",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.prdFile, "prd-file", "", "Read PRD text from this file")
	f.StringVar(&generateFlags.prdText, "prd-text", "", "PRD text")
	f.StringArrayVar(&generateFlags.images, "image", nil, "PRD image (repeatable)")
	f.StringVar(&generateFlags.feishuURL, "feishu-url", "", "Feishu document link (the bundled autotestgen-server answers 501 Not Implemented)")
	f.StringVar(&generateFlags.context, "context", "", "Extra context for the generator")
	f.StringVar(&generateFlags.requirements, "requirements", "", "Special requirements for the generated cases")
	f.StringVar(&generateFlags.out, "out", "", "Output directory (default from config)")
	f.BoolVar(&generateFlags.pdf, "pdf", false, "Also render report.pdf with headless Chromium")
	f.BoolVar(&generateFlags.export, "export", false, "Also download the service's spreadsheet export")
	f.BoolVarP(&generateFlags.quiet, "quiet", "q", false, "Do not echo the stream to stderr")
	generateCmd.MarkFlagsMutuallyExclusive("prd-file", "prd-text")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest(app.fs)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := []session.Option{session.WithLogger(app.logger)}
	store, err := openHistory()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, session.WithSaver(store))
	}
	client := newClient()
	runner := session.NewRunner(client, opts...)

	live := io.Discard
	if !generateFlags.quiet {
		live = cmd.ErrOrStderr()
	}
	genCtx, cancelGen := withTimeout(ctx, app.cfg.Timeout.Duration)
	sess, runErr := streamToWriter(genCtx, runner, req, live)
	cancelGen()
	if runErr != nil {
		return runErr
	}
	snap := sess.Snapshot()

	outDir := generateFlags.out
	if outDir == "" {
		outDir = filepath.Join(app.cfg.OutputDir, snap.ID)
	}
	written, err := writeOutputs(app.fs, outDir, snap)
	if err != nil {
		return err
	}
	log := app.logger.With(map[string]any{"session_id": snap.ID}).Sugar()
	if generateFlags.pdf {
		path, err := writePDF(ctx, app.fs, outDir, snap)
		switch {
		case errors.Is(err, report.ErrNoBrowser):
			log.Warnf("skipping report.pdf: %v", err)
		case err != nil:
			return err
		default:
			written = append(written, path)
		}
	}
	if generateFlags.export {
		exportCtx, cancelExport := withTimeout(ctx, app.cfg.Timeout.Duration)
		path, err := writeExport(exportCtx, client, app.fs, outDir, snap.Result.Records)
		cancelExport()
		if err != nil {
			return err
		}
		written = append(written, path)
	}

	log.Infof("wrote %d file(s) to %s", len(written), outDir)
	printSummary(cmd.OutOrStdout(), snap, written)
	return nil
}

// withTimeout bounds one service call; d <= 0 means no limit.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// streamToWriter runs the session while a second goroutine copies the live
// feed to w. The session's observer only hands chunks over, so a slow
// terminal never holds up ingestion.
func streamToWriter(ctx context.Context, runner *session.Runner, req genclient.GenerateRequest, w io.Writer) (*session.Session, error) {
	chunks := make(chan string, 64)
	var sess *session.Session
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)
		var err error
		sess, err = runner.Run(gctx, req, func(c string) { chunks <- c })
		return err
	})
	g.Go(func() error {
		for c := range chunks {
			if _, err := io.WriteString(w, c); err != nil {
				// Keep draining so the producer never blocks.
				for range chunks {
				}
				return fmt.Errorf("write live output: %w", err)
			}
		}
		_, _ = io.WriteString(w, "\n")
		return nil
	})
	err := g.Wait()
	return sess, err
}

func buildRequest(fs afero.Fs) (genclient.GenerateRequest, error) {
	req := genclient.GenerateRequest{
		PRDText:      generateFlags.prdText,
		FeishuURL:    strings.TrimSpace(generateFlags.feishuURL),
		Context:      generateFlags.context,
		Requirements: generateFlags.requirements,
	}
	if generateFlags.prdFile != "" {
		data, err := afero.ReadFile(fs, generateFlags.prdFile)
		if err != nil {
			return req, fmt.Errorf("read prd file: %w", err)
		}
		req.PRDText = string(data)
	}
	for _, path := range generateFlags.images {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Images = append(req.Images, genclient.Image{Name: filepath.Base(path), Data: data})
	}
	if err := req.Validate(); err != nil {
		if errors.Is(err, genclient.ErrNoDocument) {
			return req, errors.New("one of --prd-file, --prd-text, --image or --feishu-url is required")
		}
		return req, err
	}
	return req, nil
}
