// Package recovery salvages structured test-case records from a finished,
// free-form generation stream.
//
// The engine tries a fixed list of tiers against the frozen buffer and
// returns the output of the first tier that yields at least one valid
// record. Every candidate is validated on its own, so one malformed record
// never poisons the rest of its batch. Parse and schema failures are
// collected on the Result; the only error Extract returns is ErrEmptyInput.
package recovery

import (
	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

// Result is the records produced by exactly one tier.
type Result struct {
	Records []testcase.Record
	Tier    string
	// Rejections lists candidates dropped by every tier that was tried.
	Rejections []Rejection
}

// Placeholder reports whether the result is the synthesized fallback.
func (r Result) Placeholder() bool {
	return r.Tier == TierPlaceholder
}

type Engine struct {
	tiers  []Tier
	logger *logging.Logger
}

type Option func(*Engine)

// WithTiers replaces the default tier list.
func WithTiers(tiers ...Tier) Option {
	return func(e *Engine) {
		e.tiers = tiers
	}
}

// WithLogger logs each rejected candidate at debug level.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tiers:  DefaultTiers(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the tiers in order over buffer and stops at the first one
// with records. Records a tier returns are checked again, so a custom tier
// cannot leak an invalid record; those are rejected with Offset -1. With the default tiers the result is never empty for a
// non-empty buffer.
func (e *Engine) Extract(buffer string) (Result, error) {
	if buffer == "" {
		return Result{}, ErrEmptyInput
	}
	var rejections []Rejection
	for _, tier := range e.tiers {
		out := tier.Extract(buffer)
		for _, rej := range out.Rejections {
			e.logger.Debug("candidate rejected", map[string]any{
				"tier":   rej.Tier,
				"offset": rej.Offset,
				"error":  rej.Err.Error(),
			})
		}
		rejections = append(rejections, out.Rejections...)
		records := out.Records[:0:0]
		for _, rec := range out.Records {
			if err := rec.Check(); err != nil {
				e.logger.Debug("tier returned invalid record", map[string]any{"tier": tier.Name, "error": err.Error()})
				rejections = append(rejections, Rejection{Tier: tier.Name, Offset: -1, Err: err})
				continue
			}
			records = append(records, rec)
		}
		if len(records) > 0 {
			return Result{Records: records, Tier: tier.Name, Rejections: rejections}, nil
		}
	}
	return Result{Tier: TierPlaceholder, Records: []testcase.Record{testcase.Placeholder()}, Rejections: rejections}, nil
}
