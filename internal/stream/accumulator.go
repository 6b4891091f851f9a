// Package stream turns a transport's chunk sequence into a live display feed
// and one frozen text buffer.
package stream

import (
	"errors"
	"strings"
	"sync"
)

type State int

const (
	StateIdle State = iota
	StateStreaming
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further chunks are accepted in s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// ErrFinished is returned when an accumulator is used after it reached a
// terminal state. Accumulators are single-use.
var ErrFinished = errors.New("stream: accumulator already finished")

// Frozen is the immutable result of one stream: every chunk received, in
// arrival order, plus how the stream ended.
type Frozen struct {
	Text   string
	Chunks int
	State  State
	// Err is the transport error for StateError, nil otherwise.
	Err error
}

// Empty reports whether nothing at all was received.
func (f Frozen) Empty() bool {
	return f.Chunks == 0 || f.Text == ""
}

// CompletionFunc runs once, synchronously, when the accumulator reaches a
// terminal state.
type CompletionFunc func(Frozen)

type Option func(*Accumulator)

// WithObserver forwards every non-empty chunk to o as it arrives.
func WithObserver(o Observer) Option {
	return func(a *Accumulator) {
		if o != nil {
			a.feed = newFeed(o)
		}
	}
}

// WithCompletion registers the hook that consumes the frozen buffer.
func WithCompletion(fn CompletionFunc) Option {
	return func(a *Accumulator) {
		a.onFinish = fn
	}
}

// Accumulator concatenates chunks for a single stream. The caller must
// drive it to a terminal state with OnComplete or OnTransportError, which
// also releases the observer goroutine.
type Accumulator struct {
	mu     sync.Mutex
	state  State
	buf    strings.Builder
	chunks int

	feed     *feed
	onFinish CompletionFunc
}

func New(opts ...Option) *Accumulator {
	a := &Accumulator{state: StateIdle}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnChunk appends chunk to the buffer and hands it to the live observer
// without waiting for it. Chunk content is never inspected.
func (a *Accumulator) OnChunk(chunk string) error {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return ErrFinished
	}
	a.state = StateStreaming
	a.buf.WriteString(chunk)
	a.chunks++
	a.mu.Unlock()

	if a.feed != nil && chunk != "" {
		a.feed.push(chunk)
	}
	return nil
}

// OnComplete freezes the buffer and runs the completion hook.
func (a *Accumulator) OnComplete() (Frozen, error) {
	return a.finish(StateComplete, nil)
}

// OnTransportError marks the stream failed. The partial buffer is kept and
// handed to the completion hook like a completed one.
func (a *Accumulator) OnTransportError(err error) (Frozen, error) {
	return a.finish(StateError, err)
}

func (a *Accumulator) finish(state State, err error) (Frozen, error) {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return Frozen{}, ErrFinished
	}
	a.state = state
	frozen := Frozen{
		Text:   a.buf.String(),
		Chunks: a.chunks,
		State:  state,
		Err:    err,
	}
	a.mu.Unlock()

	if a.feed != nil {
		a.feed.close()
	}
	if a.onFinish != nil {
		a.onFinish(frozen)
	}
	return frozen, nil
}

func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Text returns everything received so far.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// Wait blocks until the observer has been handed every chunk. It returns
// immediately when no observer is attached.
func (a *Accumulator) Wait() {
	if a.feed != nil {
		a.feed.wait()
	}
}
