package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported signals that a measure or observation is genuinely
	// unavailable (not collected by this run). It is not a caller bug.
	ErrNotSupported = errors.New("not supported")
	// ErrOutOfRange signals a bounds violation on a row, column or
	// observation-set index. It is a programming error on the caller's side.
	ErrOutOfRange = errors.New("index out of range")
)

// IndexError reports which index of which measure was out of range.
type IndexError struct {
	Measure PerformanceMeasure
	Axis    string // "row", "column" or "set"
	Index   int
	Limit   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %s index %d out of range [0, %d)", e.Measure, e.Axis, e.Index, e.Limit)
}

func (e *IndexError) Unwrap() error {
	return ErrOutOfRange
}

func notSupported(pm PerformanceMeasure) error {
	return fmt.Errorf("statistics for %s: %w", pm, ErrNotSupported)
}
