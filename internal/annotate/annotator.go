// Package annotate defines the Annotator contract, a name-keyed registry of
// annotator factories, the built-in annotators and the failure boundary that
// every annotation run goes through, in a worker process or in-process.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/rshade/varbatch/internal/ipc"
	"github.com/rshade/varbatch/internal/record"
)

// ErrInjectedFault is returned by Run when a fatal fault was requested.
var ErrInjectedFault = errors.New("injected fatal fault")

// Annotator enriches a chunk of records in place. It must preserve record
// order. Warnings go to diag; an error fails the whole chunk.
type Annotator interface {
	Name() string
	Annotate(ctx context.Context, records []record.Record, diag io.Writer) error
}

// Reopener is implemented by annotators that hold process-wide resources
// (open files, caches, handles) which must be re-established in a fresh
// worker process before any work is done.
type Reopener interface {
	Reopen() error
}

// PanicError is returned by Run when the annotator panicked.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("annotator panicked: %v", e.Value)
}

// Run executes a over records inside a failure boundary: a returned error or
// a panic is converted into the returned error and never escapes. Faults
// are applied first; only the in-process kinds (warn, fatal, panic) are
// handled here.
func Run(ctx context.Context, a Annotator, records []record.Record, faults ipc.Faults, diag io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	if !faults.IsZero() {
		if ferr := applyFaults(records, faults, diag); ferr != nil {
			return ferr
		}
	}

	if err := a.Annotate(ctx, records, diag); err != nil {
		return fmt.Errorf("annotator %s: %w", a.Name(), err)
	}
	return nil
}

func applyFaults(records []record.Record, faults ipc.Faults, diag io.Writer) error {
	for i := range records {
		id := records[i].ID
		if id == "" {
			continue
		}
		switch id {
		case faults.WarnOnID:
			_, _ = fmt.Fprintf(diag, "WARNING: injected warning at record %s (index %d)\n", id, records[i].Index)
		case faults.FatalOnID:
			return fmt.Errorf("%w at record %s", ErrInjectedFault, id)
		case faults.PanicOnID:
			panic("injected panic at record " + id)
		}
	}
	return nil
}

// Contains reports whether any record carries id.
func Contains(records []record.Record, id string) bool {
	if id == "" {
		return false
	}
	for i := range records {
		if records[i].ID == id {
			return true
		}
	}
	return false
}

// FatalText renders err as the text carried in a result envelope.
func FatalText(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return strings.TrimSpace(pe.Error() + "\n" + pe.Stack)
	}
	return err.Error()
}
