//go:build !windows

package daemon

import (
	"os"
	"syscall"
)

// isProcessRunning 以 signal 0 探測程序是否存在
// isProcessRunning probes the process with signal 0.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// killProcess 送出 SIGTERM 要求程序結束
// killProcess asks the process to terminate with SIGTERM.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
