package recovery

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is the only error Extract returns: nothing was ever
// received, so there is nothing to recover and no placeholder is built.
var ErrEmptyInput = errors.New("recovery: empty input")

// MalformedPayloadError is a sentinel-delimited payload that is not valid
// JSON of the expected kind. It is recorded and skipped, never returned.
type MalformedPayloadError struct {
	Tier   string
	Offset int
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s payload at offset %d: %v", e.Tier, e.Offset, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// Rejection describes one candidate a tier had to drop.
type Rejection struct {
	Tier   string
	Offset int
	Err    error
}
