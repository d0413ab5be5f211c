// Command varbatch annotates VCF records in parallel worker processes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rshade/varbatch/internal/cli"
	"github.com/rshade/varbatch/internal/config"
	"github.com/rshade/varbatch/internal/engine/dispatch"
	"github.com/rshade/varbatch/pkg/version"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitWorker      = 3
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version.GetVersion())
	err := root.ExecuteContext(ctx)
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return exitCodeFor(err)
}

// exitCodeFor maps a command error to the process exit code.
func exitCodeFor(err error) int {
	var exitErr *cli.ExitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, dispatch.ErrInvalidConfig):
		return exitUsage
	case errors.Is(err, dispatch.ErrWorkerFatal),
		errors.Is(err, dispatch.ErrWorkerCrashed),
		errors.Is(err, dispatch.ErrWorkerTimeout),
		errors.Is(err, dispatch.ErrProtocolMismatch),
		errors.Is(err, dispatch.ErrSpawnFailed):
		return exitWorker
	default:
		return exitError
	}
}
