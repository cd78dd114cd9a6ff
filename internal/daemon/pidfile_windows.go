//go:build windows

package daemon

import "os"

// isProcessRunning 在 Windows 上透過 FindProcess 檢查程序
// On Windows FindProcess only succeeds for live processes.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
