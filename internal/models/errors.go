package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTimeframe indicates a timeframe conversion with a target that
// is not a positive integer multiple of the source. This is a programmer
// error: the calling operation fails and is not retried.
var ErrInvalidTimeframe = errors.New("invalid timeframe conversion")

// ErrEmptyData indicates an aggregation was asked to produce at least one
// candle from empty input.
var ErrEmptyData = errors.New("no data to aggregate")

// ValidationError reports a malformed tick or candle. It is raised before
// any buffering takes place and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// TransientWriteError wraps a time-series store failure that is worth
// retrying. The batch writer retries these with exponential backoff and
// propagates the last one once the attempts are exhausted.
type TransientWriteError struct {
	Err error
}

func (e *TransientWriteError) Error() string {
	return fmt.Sprintf("transient write failure: %v", e.Err)
}

func (e *TransientWriteError) Unwrap() error { return e.Err }
