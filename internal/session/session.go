// Package session runs one generation request end to end: it streams the
// service output through an accumulator, recovers records from the frozen
// buffer and keeps the per-request state a caller needs to display it.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nobodyplayer/byte5-autotestgen/internal/genclient"
	"github.com/nobodyplayer/byte5-autotestgen/internal/history"
	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/recovery"
	"github.com/nobodyplayer/byte5-autotestgen/internal/stream"
)

// Streamer is the transport a session reads from. *genclient.Client
// satisfies it.
type Streamer interface {
	Generate(ctx context.Context, req genclient.GenerateRequest, onChunk func(string)) error
}

// Saver persists finished runs.
type Saver interface {
	Save(ctx context.Context, run history.Run) error
}

// Session is the state of one request. It is safe to read with Snapshot
// while the run is in progress.
type Session struct {
	mu sync.Mutex

	id          string
	request     genclient.GenerateRequest
	generating  bool
	state       stream.State
	output      strings.Builder
	result      recovery.Result
	chunks      int
	transport   error
	extract     error
	startedAt   time.Time
	completedAt time.Time
}

// Snapshot is a point-in-time copy of a Session.
type Snapshot struct {
	ID           string
	Request      genclient.GenerateRequest
	Generating   bool
	State        stream.State
	Output       string
	Result       recovery.Result
	Chunks       int
	TransportErr error
	ExtractErr   error
	StartedAt    time.Time
	CompletedAt  time.Time
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		Request:      s.request,
		Generating:   s.generating,
		State:        s.state,
		Output:       s.output.String(),
		Result:       s.result,
		Chunks:       s.chunks,
		TransportErr: s.transport,
		ExtractErr:   s.extract,
		StartedAt:    s.startedAt,
		CompletedAt:  s.completedAt,
	}
}

func (s *Session) appendOutput(chunk string) {
	s.mu.Lock()
	s.output.WriteString(chunk)
	s.state = stream.StateStreaming
	s.mu.Unlock()
}

type Runner struct {
	streamer Streamer
	engine   *recovery.Engine
	saver    Saver
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Runner)

func WithEngine(e *recovery.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithSaver stores every finished run that produced output.
func WithSaver(s Saver) Option {
	return func(r *Runner) {
		r.saver = s
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(streamer Streamer, opts ...Option) *Runner {
	r := &Runner{
		streamer: streamer,
		engine:   recovery.NewEngine(),
		logger:   logging.Nop(),
		tracer:   otel.Tracer("github.com/nobodyplayer/byte5-autotestgen/internal/session"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run streams req, forwarding each chunk to observer (which may be nil),
// and recovers records once the stream ends. The returned session is
// always non-nil and finished.
//
// A transport failure after some output arrived is not an error: records
// are recovered from the partial buffer and the failure is kept on the
// session. When nothing at all arrived Run returns recovery.ErrEmptyInput
// joined with the transport failure, if any.
func (r *Runner) Run(ctx context.Context, req genclient.GenerateRequest, observer stream.Observer) (*Session, error) {
	sess := &Session{
		id:         ulid.Make().String(),
		request:    req,
		generating: true,
		state:      stream.StateIdle,
		startedAt:  r.now(),
	}
	ctx, span := r.tracer.Start(ctx, "session.run", trace.WithAttributes(attribute.String("session.id", sess.id)))
	defer span.End()

	log := r.logger.With(map[string]any{"session_id": sess.id})
	log.Info("generation started", map[string]any{
		"images":     len(req.Images),
		"prd_chars":  len(req.PRDText),
		"feishu_url": req.FeishuURL != "",
	})

	var (
		result     recovery.Result
		extractErr error
	)
	acc := stream.New(
		stream.WithObserver(func(chunk string) {
			sess.appendOutput(chunk)
			if observer != nil {
				observer(chunk)
			}
		}),
		stream.WithCompletion(func(f stream.Frozen) {
			result, extractErr = r.engine.Extract(f.Text)
		}),
	)

	transportErr := r.streamer.Generate(ctx, req, func(chunk string) {
		_ = acc.OnChunk(chunk)
	})
	var frozen stream.Frozen
	if transportErr != nil {
		frozen, _ = acc.OnTransportError(transportErr)
	} else {
		frozen, _ = acc.OnComplete()
	}
	acc.Wait()

	sess.mu.Lock()
	sess.generating = false
	sess.state = frozen.State
	sess.chunks = frozen.Chunks
	sess.result = result
	sess.transport = transportErr
	sess.extract = extractErr
	sess.completedAt = r.now()
	sess.mu.Unlock()

	span.SetAttributes(
		attribute.Int("stream.chunks", frozen.Chunks),
		attribute.Int("stream.bytes", len(frozen.Text)),
		attribute.String("recovery.tier", result.Tier),
		attribute.Int("recovery.records", len(result.Records)),
		attribute.Int("recovery.rejections", len(result.Rejections)),
	)

	fields := map[string]any{
		"state":      frozen.State.String(),
		"chunks":     frozen.Chunks,
		"tier":       result.Tier,
		"records":    len(result.Records),
		"rejections": len(result.Rejections),
	}
	if transportErr != nil {
		span.RecordError(transportErr)
		fields["transport_error"] = transportErr.Error()
	}

	if extractErr != nil {
		runErr := extractErr
		if transportErr != nil {
			runErr = errors.Join(extractErr, transportErr)
		}
		span.SetStatus(codes.Error, runErr.Error())
		log.Error("generation produced no output", fields)
		return sess, runErr
	}
	if transportErr != nil {
		log.Warn("generation interrupted, recovered from partial output", fields)
	} else {
		log.Info("generation finished", fields)
	}

	if r.saver != nil {
		if err := r.saver.Save(context.WithoutCancel(ctx), historyRun(sess.Snapshot())); err != nil {
			log.Warn("save run failed", map[string]any{"error": err.Error()})
		}
	}
	return sess, nil
}

func historyRun(s Snapshot) history.Run {
	run := history.Run{
		ID:        s.ID,
		CreatedAt: s.StartedAt,
		State:     s.State.String(),
		RawText:   s.Output,
		Tier:      s.Result.Tier,
		Records:   s.Result.Records,
	}
	if s.TransportErr != nil {
		run.TransportError = s.TransportErr.Error()
	}
	return run
}
