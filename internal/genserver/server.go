// Package genserver is the HTTP generation service: it streams model
// output as markdown, appends the machine-readable record marker, and
// exports records as CSV.
package genserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/report"
	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

// GeneratingHeading is written before any model output.
const GeneratingHeading = "# Generating test cases...\n\n"

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Server struct {
	gen        Generator
	fs         afero.Fs
	uploadDir  string
	resultsDir string
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Server)

func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer serves the generation API. Uploaded images are kept under
// uploadDir and exports under resultsDir, both on fs.
func NewServer(gen Generator, fs afero.Fs, uploadDir, resultsDir string, opts ...Option) http.Handler {
	s := &Server{
		gen:        gen,
		fs:         fs,
		uploadDir:  uploadDir,
		resultsDir: resultsDir,
		logger:     logging.Nop(),
		tracer:     otel.Tracer("github.com/nobodyplayer/byte5-autotestgen/internal/genserver"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", s.handlePing)
	mux.HandleFunc("/api/test-cases/generate", s.handleGenerate)
	mux.HandleFunc("/api/test-cases/export", s.handleExport)
	mux.HandleFunc("/api/test-cases/download/", s.handleDownload)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, 200, map[string]any{"status": "success", "message": "pong"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, 400, "invalid multipart form")
		return
	}
	if strings.TrimSpace(r.FormValue("feishu_url")) != "" {
		writeError(w, 501, "feishu documents are not supported by this server")
		return
	}

	in := Input{
		PRDText:      r.FormValue("prd_text"),
		Context:      r.FormValue("context"),
		Requirements: r.FormValue("requirements"),
	}
	images, err := s.readImages(r)
	if err != nil {
		s.logger.Error("store uploaded images failed", map[string]any{"error": err.Error()})
		writeError(w, 500, "failed to save uploaded images")
		return
	}
	in.Images = images
	if strings.TrimSpace(in.PRDText) == "" && len(in.Images) == 0 {
		writeError(w, 400, "prd_text, images or feishu_url is required")
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "genserver.generate", trace.WithAttributes(
		attribute.Int("prd.chars", len(in.PRDText)),
		attribute.Int("prd.images", len(in.Images)),
	))
	defer span.End()

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(200)
	flusher, _ := w.(http.Flusher)
	emit := func(text string) {
		_, _ = io.WriteString(w, text)
		if flusher != nil {
			flusher.Flush()
		}
	}

	emit(GeneratingHeading)
	var generated strings.Builder
	err = s.gen.Generate(ctx, in, func(delta string) {
		generated.WriteString(delta)
		emit(delta)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("generation failed", map[string]any{"error": err.Error(), "generated_chars": generated.Len()})
		emit(fmt.Sprintf("\n\n**Error:** generating test cases failed: %s\n\n", err))
		return
	}

	records := testcase.ParseMarkdown(generated.String())
	span.SetAttributes(attribute.Int("records", len(records)))
	s.logger.Info("generation finished", map[string]any{"generated_chars": generated.Len(), "records": len(records)})
	if len(records) == 0 {
		return
	}
	marker, err := report.BulkMarker(records)
	if err != nil {
		s.logger.Error("encode record marker failed", map[string]any{"error": err.Error()})
		return
	}
	emit("\n\n" + marker + "\n")
}

// readImages keeps the supported images from the "images" field and saves
// each one under the upload directory. Other file types are skipped.
func (s *Server) readImages(r *http.Request) ([]Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []Image
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		mediaType := http.DetectContentType(data)
		if !imageTypes[mediaType] {
			s.logger.Warn("skipping unsupported upload", map[string]any{"filename": fh.Filename, "content_type": mediaType})
			continue
		}
		if err := s.fs.MkdirAll(s.uploadDir, 0o755); err != nil {
			return nil, err
		}
		dst := filepath.Join(s.uploadDir, ulid.Make().String()+"-"+sanitizeFilename(fh.Filename))
		if err := afero.WriteFile(s.fs, dst, data, 0o644); err != nil {
			return nil, err
		}
		out = append(out, Image{Name: fh.Filename, MediaType: mediaType, Data: data})
	}
	return out, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var raw []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, 10<<20)).Decode(&raw); err != nil {
		writeError(w, 400, "body must be a JSON array of test cases")
		return
	}
	if len(raw) == 0 {
		writeError(w, 400, "at least one test case is required")
		return
	}
	records := make([]testcase.Record, 0, len(raw))
	for i, item := range raw {
		rec, err := testcase.Decode(item)
		if err != nil {
			writeError(w, 422, fmt.Sprintf("test case %d: %v", i, err))
			return
		}
		records = append(records, rec)
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, records); err != nil {
		writeError(w, 500, "failed to build export")
		return
	}
	filename := fmt.Sprintf("test_cases_%s.xlsx", s.now().Format("20060102_150405"))
	if err := s.saveResult(filename, buf.Bytes()); err != nil {
		s.logger.Error("save export failed", map[string]any{"filename": filename, "error": err.Error()})
		writeError(w, 500, "failed to save export")
		return
	}
	s.logger.Info("exported test cases", map[string]any{"filename": filename, "records": len(records)})

	w.Header().Set("Content-Type", report.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(200)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) saveResult(filename string, data []byte) error {
	if err := s.fs.MkdirAll(s.resultsDir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, filepath.Join(s.resultsDir, filename), data, 0o644)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/test-cases/download/")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, 400, "invalid filename")
		return
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.resultsDir, name))
	if err != nil {
		writeError(w, 404, "file not found")
		return
	}
	contentType := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		contentType = report.XLSXContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(200)
	_, _ = w.Write(data)
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(filepath.Base(v))
	if v == "" || v == "." || v == "/" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, v)
}
