package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nobodyplayer/byte5-autotestgen/internal/genclient"
	"github.com/nobodyplayer/byte5-autotestgen/internal/recovery"
	"github.com/nobodyplayer/byte5-autotestgen/internal/report"
	"github.com/nobodyplayer/byte5-autotestgen/internal/session"
	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

// recordsFile is the JSON document written to records.json and printed by
// the recover command.
type recordsFile struct {
	RunID      string `json:"run_id,omitempty"`
	Tier       string `json:"tier"`
	Rejections int    `json:"rejections"`
	Records    any    `json:"records"`
}

func encodeResult(runID string, res recovery.Result) ([]byte, error) {
	return json.MarshalIndent(recordsFile{
		RunID:      runID,
		Tier:       res.Tier,
		Rejections: len(res.Rejections),
		Records:    res.Records,
	}, "", "  ")
}

// writeOutputs stores the raw stream, the recovered records and the
// markdown report under dir and returns the paths written.
func writeOutputs(fs afero.Fs, dir string, snap session.Snapshot) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	records, err := encodeResult(snap.ID, snap.Result)
	if err != nil {
		return nil, err
	}
	files := []struct {
		name string
		data []byte
	}{
		{"output.md", []byte(snap.Output)},
		{"records.json", append(records, '\n')},
		{"report.md", []byte(report.Markdown(reportTitle(snap), snap.Result.Records))},
	}
	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := afero.WriteFile(fs, path, f.data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writePDF(ctx context.Context, fs afero.Fs, dir string, snap session.Snapshot) (string, error) {
	title := reportTitle(snap)
	layout := report.A4
	layout.Footer = title
	renderer := report.NewPDFRenderer(app.cfg.ChromePath, report.WithLayout(layout))
	pdf, err := renderer.RenderMarkdown(ctx, title, report.Markdown(title, snap.Result.Records))
	if err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}
	path := filepath.Join(dir, "report.pdf")
	if err := afero.WriteFile(fs, path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

type exporter interface {
	Export(ctx context.Context, records []testcase.Record) (genclient.Export, error)
}

// writeExport downloads the service's spreadsheet for records into dir.
func writeExport(ctx context.Context, c exporter, fs afero.Fs, dir string, records []testcase.Record) (string, error) {
	exp, err := c.Export(ctx, records)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(dir, exp.Filename)
	if err := afero.WriteFile(fs, path, exp.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func reportTitle(snap session.Snapshot) string {
	return "Test Cases " + snap.ID
}

func printSummary(w io.Writer, snap session.Snapshot, written []string) {
	fmt.Fprintf(w, "Run:        %s\n", snap.ID)
	fmt.Fprintf(w, "State:      %s (%d chunks)\n", snap.State, snap.Chunks)
	fmt.Fprintf(w, "Tier:       %s\n", snap.Result.Tier)
	fmt.Fprintf(w, "Records:    %d\n", len(snap.Result.Records))
	if n := len(snap.Result.Rejections); n > 0 {
		fmt.Fprintf(w, "Rejected:   %d candidate(s)\n", n)
	}
	if snap.Result.Placeholder() {
		fmt.Fprintf(w, "Note:       no structured records found; see output.md for the raw text\n")
	}
	if snap.TransportErr != nil {
		fmt.Fprintf(w, "Warning:    stream interrupted: %v\n", snap.TransportErr)
	}
	for _, p := range written {
		fmt.Fprintf(w, "Wrote:      %s\n", p)
	}
}
