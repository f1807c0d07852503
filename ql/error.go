// Package ql implements the expression surface the engine consumes: wire
// functions compiled into callables (secondary-index mappings), transform
// pipelines, terminals, and the batch-budget tracker.
package ql

import (
	"errors"
	"fmt"
)

// Error is an evaluation failure raised by an index function, transform or
// terminal on a specific document. It is a logic error scoped to one row:
// the sync pipeline may drop the row, a scan surfaces it as the final
// result. It is never a cancellation.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "eval: " + e.Msg
}

func Errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// IsEvalError distinguishes row-scoped evaluation failures from storage
// and cancellation errors.
func IsEvalError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
