// Package progress reports harvest progress without affecting output
// correctness.
package progress

import (
	"sync"
	"time"
)

// DefaultInterval is the entry count between periodic updates
const DefaultInterval = 1000

// Reporter receives progress updates during a harvest
type Reporter interface {
	// Start begins tracking a new scan rooted at root
	Start(root string)
	// Entry reports one harvested entry; implementations decide how often
	// to surface it
	Entry(path string)
	// Complete marks the scan as finished with the final entry count
	Complete(total int)
	// Error reports a non-fatal scan error (skipped entry)
	Error(path string, err error)
}

// Update represents a progress update delivered to a callback
type Update struct {
	Type    UpdateType
	Root    string
	Path    string
	Entries int
	Elapsed time.Duration
	Err     error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

// Callback is a function that receives progress updates
type Callback func(update Update)

// CallbackReporter implements Reporter with a callback function,
// emitting a progress update every Interval entries
type CallbackReporter struct {
	callback  Callback
	interval  int
	mu        sync.Mutex
	root      string
	entries   int
	startTime time.Time
}

// NewCallbackReporter creates a CallbackReporter with the default interval
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback, interval: DefaultInterval}
}

// SetInterval overrides the reporting interval
func (r *CallbackReporter) SetInterval(n int) {
	if n > 0 {
		r.interval = n
	}
}

// Start begins tracking a new scan
func (r *CallbackReporter) Start(root string) {
	r.mu.Lock()
	r.root = root
	r.entries = 0
	r.startTime = time.Now()
	update := Update{Type: UpdateStart, Root: root}
	r.mu.Unlock()

	r.callback(update)
}

// Entry counts one harvested entry and emits a periodic update
func (r *CallbackReporter) Entry(path string) {
	r.mu.Lock()
	r.entries++
	emit := r.entries%r.interval == 0
	update := Update{
		Type:    UpdateProgress,
		Root:    r.root,
		Path:    path,
		Entries: r.entries,
		Elapsed: time.Since(r.startTime),
	}
	r.mu.Unlock()

	if emit {
		r.callback(update)
	}
}

// Complete marks the scan as finished
func (r *CallbackReporter) Complete(total int) {
	r.mu.Lock()
	update := Update{
		Type:    UpdateComplete,
		Root:    r.root,
		Entries: total,
		Elapsed: time.Since(r.startTime),
	}
	r.mu.Unlock()

	r.callback(update)
}

// Error reports a skipped entry
func (r *CallbackReporter) Error(path string, err error) {
	r.mu.Lock()
	update := Update{Type: UpdateError, Root: r.root, Path: path, Err: err}
	r.mu.Unlock()

	r.callback(update)
}

// NullReporter discards all updates
type NullReporter struct{}

func (NullReporter) Start(root string)             {}
func (NullReporter) Entry(path string)             {}
func (NullReporter) Complete(total int)            {}
func (NullReporter) Error(path string, err error)  {}
