package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rshade/varbatch/internal/workerhost"
)

// Dispatch failure kinds. Every error returned by Dispatch is an *Error whose
// Kind is one of these, so callers can use errors.Is.
var (
	ErrSpawnFailed      = errors.New("worker spawn failed")
	ErrWorkerFatal      = errors.New("worker reported a fatal error")
	ErrWorkerCrashed    = errors.New("worker died without a valid result")
	ErrWorkerTimeout    = errors.New("worker timed out")
	ErrProtocolMismatch = workerhost.ErrProtocolMismatch

	ErrInvalidConfig = errors.New("invalid dispatch configuration")
)

// Error describes the first worker failure of a dispatch.
type Error struct {
	Kind error
	// PID is the failing worker's process ID, 0 if it never started.
	PID int
	// Seq is the failing worker's spawn sequence number.
	Seq int
	// Diagnostic is whatever the worker reported before failing.
	Diagnostic string
	// Fatal is the worker's failure text for ErrWorkerFatal.
	Fatal string
	// Stderr is the tail of the worker's stderr.
	Stderr string
	// ExitCode is the worker's exit code, -1 if unknown.
	ExitCode int
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.PID > 0 {
		fmt.Fprintf(&b, "worker %d (seq %d): ", e.PID, e.Seq)
	} else {
		fmt.Fprintf(&b, "worker seq %d: ", e.Seq)
	}
	b.WriteString(e.Kind.Error())
	if e.Fatal != "" {
		b.WriteString(": ")
		b.WriteString(firstLine(e.Fatal))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
