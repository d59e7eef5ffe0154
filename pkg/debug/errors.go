package debug

import (
	"errors"
	"fmt"
)

var (
	// ErrNoExecutableStatement means no executable statement starts at or
	// after the requested line.
	ErrNoExecutableStatement = errors.New("no executable statement at or after line")

	// ErrCodeMismatch means the resolved node's code does not match the
	// source text at its line.
	ErrCodeMismatch = errors.New("statement code does not match source line")

	// ErrNoAST means a breakpoint was resolved before any template was parsed.
	ErrNoAST = errors.New("no AST available")

	// ErrNoSession means debugging is not enabled.
	ErrNoSession = errors.New("no active debug session")
)

// ResolutionError describes a breakpoint that could not be placed.
type ResolutionError struct {
	Line        int    // requested line
	Reason      string // human-readable reason
	SourceLine  string // source text at the requested or resolved line
	NearestLine int    // nearest executable node, 0 when none
	NearestCode string
	Err         error // one of the sentinel errors
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("breakpoint at line %d: %s", e.Line, e.Reason)
	if e.NearestLine > 0 {
		msg += fmt.Sprintf(" (nearest statement at line %d: %q)", e.NearestLine, e.NearestCode)
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }
