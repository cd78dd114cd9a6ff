// Package scheduler 提供週期性重新掃描排程
// Package scheduler drives periodic index rescans for the live sync
// daemon so drift accumulated while the daemon was busy or events were
// dropped gets reconciled on a fixed cadence.
package scheduler

import (
	"context"
	"time"
)

// Scheduler defines the interface for rescan schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// RescanRunner is the interface that schedulers use to trigger a full
// reconciliation rescan of the watched roots
type RescanRunner interface {
	Rescan(ctx context.Context) error
}
