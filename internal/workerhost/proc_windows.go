//go:build windows

package workerhost

import (
	"fmt"
	"os/exec"
)

// CheckPlatform reports whether workers can be launched here. os/exec cannot
// pass ExtraFiles on Windows, so the worker channel has no descriptors 3 and 4.
func CheckPlatform() error {
	return fmt.Errorf("%w: use --fork 0 or --sequential", ErrUnsupportedPlatform)
}

func configureProcess(*exec.Cmd) {}

func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
