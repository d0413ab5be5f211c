package cli

import (
	"fmt"

	"github.com/rshade/varbatch/internal/worker"
)

// runWorker is replaced in tests.
var runWorker = worker.Main //nolint:gochecknoglobals // test seam

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
