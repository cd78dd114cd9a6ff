package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/daemon"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/scheduler"
	"github.com/lightsearch/lightsearch/internal/store"
)

// DaemonService 管理即時同步常駐程序的生命週期
// DaemonService manages the live sync daemon lifecycle.
type DaemonService struct {
	mu      sync.RWMutex
	cfg     *config.Config
	st      *store.Store
	d       *daemon.Daemon
	sched   scheduler.Scheduler
	cancel  context.CancelFunc
	pidFile *daemon.PIDFile
	log     logger.Logger
}

// DaemonStatus 描述常駐程序目前的狀態
// DaemonStatus describes the daemon's current state.
type DaemonStatus struct {
	Running        bool
	PID            int
	Counters       daemon.Counters
	IndexedEntries int64
	Rescan         *scheduler.Status
}

// NewDaemonService creates the daemon service. The store is opened here
// so the index is queryable for status before the loop starts.
func NewDaemonService(cfg *config.Config) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &DaemonService{
		cfg:     cfg,
		st:      st,
		pidFile: daemon.NewPIDFile(daemon.DefaultPIDPath()),
		log:     logger.With("component", "daemon-service"),
	}, nil
}

// Start 啟動常駐程序，同一時間僅允許一個實例
// Start launches the daemon. Only one instance may run at a time.
func (s *DaemonService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d != nil {
		return fmt.Errorf("daemon is already running")
	}
	if err := s.pidFile.Write(); err != nil {
		return err
	}

	d, err := daemon.New(s.cfg, s.st)
	if err != nil {
		s.pidFile.Remove()
		return err
	}
	if err := d.Start(); err != nil {
		s.pidFile.Remove()
		return err
	}
	s.d = d

	if s.cfg.RescanIntervalMinutes > 0 {
		interval := time.Duration(s.cfg.RescanIntervalMinutes) * time.Minute
		sched, err := scheduler.NewIntervalScheduler(interval, d)
		if err != nil {
			s.log.Warn("cannot create rescan scheduler", "error", err)
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := sched.Start(ctx); err != nil {
			cancel()
			s.log.Warn("cannot start rescan scheduler", "error", err)
			return nil
		}
		s.sched = sched
		s.cancel = cancel
		s.log.Info("periodic rescans enabled", "interval_minutes", s.cfg.RescanIntervalMinutes)
	}
	return nil
}

// stopScheduler halts the periodic rescans. Callers hold s.mu.
func (s *DaemonService) stopScheduler() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Stop(); err != nil {
		s.log.Warn("cannot stop rescan scheduler", "error", err)
	}
	s.cancel()
	s.sched = nil
	s.cancel = nil
}

// Stop 停止常駐程序並移除 PID 檔案
// Stop shuts the daemon down and removes the PID file.
func (s *DaemonService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d == nil {
		return fmt.Errorf("daemon is not running")
	}
	s.stopScheduler()
	s.d.Stop()
	s.d = nil

	if err := s.pidFile.Remove(); err != nil {
		s.log.Warn("cannot remove pid file", "error", err)
	}
	return nil
}

// Status returns the current daemon status.
func (s *DaemonService) Status() DaemonStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := DaemonStatus{Running: s.d != nil}
	if s.d != nil {
		status.PID = os.Getpid()
		status.Counters = s.d.Stats()
		if s.sched != nil {
			status.Rescan = s.sched.Status()
		}
	} else if pid, running := s.pidFile.IsRunning(); running {
		// Another process holds the daemon role.
		status.Running = true
		status.PID = pid
	}
	if total, err := s.st.Count(); err == nil {
		status.IndexedEntries = total
	}
	return status
}

// Close releases every resource the service owns.
func (s *DaemonService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	if s.d != nil {
		s.stopScheduler()
		s.d.Stop()
		s.d = nil
		if err := s.pidFile.Remove(); err != nil {
			lastErr = err
		}
	}
	if s.st != nil {
		if err := s.st.Close(); err != nil {
			lastErr = err
		}
		s.st = nil
	}
	return lastErr
}
