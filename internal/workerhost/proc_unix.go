//go:build !windows

package workerhost

import (
	"os/exec"
	"syscall"
)

// CheckPlatform reports whether workers can be launched here.
func CheckPlatform() error { return nil }

// configureProcess puts the worker in its own process group so that
// anything it spawns dies with it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid <= 0 {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
