//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processExists checks if a process with the given PID is alive
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes liveness
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: process exists but is not signalable by us
	return errors.Is(err, syscall.EPERM)
}
