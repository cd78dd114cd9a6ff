package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDFile 管理常駐程序的 PID 檔案
// PIDFile manages the daemon's PID file.
type PIDFile struct {
	path string
}

// NewPIDFile 建立 PID 檔案管理器
// NewPIDFile creates a PID file manager.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// DefaultPIDPath 回傳預設的 PID 檔案路徑
// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lightsearch-daemon.pid")
	}
	return filepath.Join(home, ".config", "lightsearch", "daemon.pid")
}

// Write 寫入當前程序的 PID，若已有執行中的常駐程序則回傳錯誤
// Write records the current process PID. It fails when another
// daemon instance is already running.
func (p *PIDFile) Write() error {
	if pid, running := p.IsRunning(); running {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read 讀取 PID 檔案中的程序編號
// Read returns the PID stored in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", p.path, err)
	}
	return pid, nil
}

// Remove 刪除 PID 檔案
// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	err := os.Remove(p.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsRunning 檢查 PID 檔案指向的程序是否仍在執行
// IsRunning reports whether the process named by the PID file is alive.
// A stale file (dead process) is removed as a side effect.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	if !isProcessRunning(pid) {
		_ = p.Remove()
		return 0, false
	}
	return pid, true
}

// Kill 終止 PID 檔案指向的程序
// Kill terminates the process named by the PID file.
func (p *PIDFile) Kill() error {
	pid, running := p.IsRunning()
	if !running {
		return fmt.Errorf("daemon is not running")
	}
	if err := killProcess(pid); err != nil {
		return fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = p.Remove()
	return nil
}
