// Package lock implements the advisory writer lock for the index store.
// At most one writer (a bulk load or the live daemon) may hold it; readers
// never take it.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
)

const (
	// LockSuffix is appended to the database path to form the lock file path
	LockSuffix = ".writer.lock"
	// DefaultStaleTimeout is the duration after which a lock from an
	// unreachable holder is considered stale
	DefaultStaleTimeout = 30 * time.Minute
)

// Info contains metadata about the lock holder
type Info struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Operation string    `json:"operation,omitempty"` // "bulk-load" or "daemon"
}

// WriterLock is a file-based advisory lock guarding index store writes
type WriterLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *Info
}

// ForDatabase creates a writer lock colocated with the database file
func ForDatabase(dbPath string) *WriterLock {
	return &WriterLock{
		lockPath:     dbPath + LockSuffix,
		staleTimeout: DefaultStaleTimeout,
	}
}

// SetStaleTimeout overrides the staleness fallback window
func (l *WriterLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire attempts to take the lock for the named operation.
// Returns *HeldError if the lock is held by another live writer.
func (l *WriterLock) Acquire(operation string) error {
	if l.info != nil {
		// Already held by this instance
		existing, err := l.readInfo()
		if err == nil && l.isHeldByThisInstance(existing) {
			return nil
		}
	}

	// Check for an existing lock file
	existing, err := l.readInfo()
	if err == nil {
		if l.isStale(existing) {
			if err := os.Remove(l.lockPath); err != nil {
				return fmt.Errorf("failed to remove stale lock: %w", err)
			}
		} else {
			return &HeldError{Holder: existing}
		}
	}

	hostname, _ := os.Hostname()
	info := &Info{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: operation,
	}

	// O_CREATE|O_EXCL makes creation atomic against concurrent writers
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, readErr := l.readInfo()
			if readErr != nil {
				return fmt.Errorf("lock acquisition race: %w", err)
			}
			return &HeldError{Holder: holder}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// AcquireWithRetry retries Acquire with backoff while another writer holds
// the lock. Exhausting the retry budget surfaces domain.ErrStoreLocked so the
// caller can fail that write batch without terminating the process.
func (l *WriterLock) AcquireWithRetry(operation string, attempts int, backoff time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := l.Acquire(operation)
		if err == nil {
			return nil
		}
		if !IsHeldError(err) {
			return err
		}
		lastErr = err
		time.Sleep(backoff * time.Duration(i+1))
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreLocked, lastErr)
}

// Release releases the lock held by this instance
func (l *WriterLock) Release() error {
	if l.info == nil {
		return nil // Not holding lock
	}

	existing, err := l.readInfo()
	if err != nil {
		l.info = nil
		return nil // Lock file already gone
	}

	if !l.isHeldByThisInstance(existing) {
		l.info = nil
		return fmt.Errorf("lock was taken over by another process")
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked reports whether a live writer currently holds the lock
func (l *WriterLock) IsLocked() bool {
	info, err := l.readInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// Holder returns information about the current lock holder
func (l *WriterLock) Holder() (*Info, error) {
	info, err := l.readInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

func (l *WriterLock) readInfo() (*Info, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}

	return &info, nil
}

// isStale checks if a lock belongs to a dead process. Timeout is only the
// fallback for locks written by another host where the PID cannot be probed.
func (l *WriterLock) isStale(info *Info) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !processExists(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *WriterLock) isHeldByThisInstance(info *Info) bool {
	if l.info == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() && info.Hostname == hostname &&
		l.info.StartTime.Equal(info.StartTime) &&
		l.info.Operation == info.Operation
}

// HeldError reports a lock held by another writer
type HeldError struct {
	Holder *Info
}

func (e *HeldError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("writer lock held by PID %d on %s since %s (operation: %s)",
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Operation,
		)
	}
	return "writer lock held by another process"
}

// IsHeldError checks if an error is a HeldError
func IsHeldError(err error) bool {
	_, ok := err.(*HeldError)
	return ok
}
