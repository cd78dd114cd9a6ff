// Package daemon 實作即時同步常駐程序：監看檔案系統事件並增量更新索引
// Package daemon implements the live sync loop. It watches the configured
// roots with fsnotify, coalesces bursts of change events, correlates
// delete/create pairs into renames, and applies the result to the store
// under the writer lock.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/lock"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/store"
)

const (
	// flushTick bounds how late a debounced write can fire past its deadline.
	flushTick = 50 * time.Millisecond

	statsInterval = 5 * time.Minute

	writeAttempts = 3
	writeBackoff  = 100 * time.Millisecond
)

// Counters 累計常駐程序套用的變更
// Counters accumulates the changes the daemon has applied.
type Counters struct {
	Added   uint64
	Updated uint64
	Removed uint64
	Moved   uint64
	Rescans uint64
	Errors  uint64
}

// pendingWrite is a debounced create/modify waiting for its quiet period.
type pendingWrite struct {
	due time.Time
}

// pendingDelete is a removal parked for the rename correlation window.
type pendingDelete struct {
	path    string
	inode   uint64
	isDir   bool
	expires time.Time
}

// Daemon 監看設定的根目錄並增量維護索引
// Daemon watches the configured roots and keeps the index current.
type Daemon struct {
	cfg       *config.Config
	st        *store.Store
	harvester *harvest.Harvester
	wlock     *lock.WriterLock
	watcher   *fsnotify.Watcher
	log       logger.Logger

	debounce     time.Duration
	renameWindow time.Duration

	// watched maps a directory to its depth below its watch root.
	// Only touched from the event loop goroutine.
	watched        map[string]int
	pendingWrites  map[string]pendingWrite
	pendingDeletes []pendingDelete

	mu       sync.Mutex
	counters Counters

	rescanReq chan chan struct{}

	stop chan struct{}
	done chan struct{}
}

// New 建立尚未啟動的常駐程序
// New creates a Daemon over an already opened store.
func New(cfg *config.Config, st *store.Store) (*Daemon, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Daemon{
		cfg:            cfg,
		st:             st,
		harvester:      harvest.New(),
		wlock:          lock.ForDatabase(cfg.DatabasePath),
		watcher:        watcher,
		log:            logger.With("component", "daemon"),
		debounce:       time.Duration(cfg.DebounceMs) * time.Millisecond,
		renameWindow:   time.Duration(cfg.RenameWindowMs) * time.Millisecond,
		watched:        make(map[string]int),
		pendingWrites:  make(map[string]pendingWrite),
		pendingDeletes: nil,
		rescanReq:      make(chan chan struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Start 註冊監看點並啟動事件迴圈
// Start registers watches for every configured root and launches the
// event loop. A missing root is fatal; later disappearance is handled
// by the loop itself.
func (d *Daemon) Start() error {
	roots := d.cfg.ExpandedWatchPaths()
	if len(roots) == 0 {
		return fmt.Errorf("no watch paths configured")
	}
	for _, root := range roots {
		if err := d.watchRoot(root); err != nil {
			d.watcher.Close()
			return err
		}
	}
	d.log.Info("daemon started",
		"roots", len(roots),
		"watched_dirs", len(d.watched),
		"debounce_ms", d.cfg.DebounceMs,
		"rename_window_ms", d.cfg.RenameWindowMs,
	)

	go d.run()
	return nil
}

// Stop 要求事件迴圈結束並等待收尾完成
// Stop flushes everything still pending and waits for the loop to exit.
func (d *Daemon) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

// Rescan 請求事件迴圈立即執行一次全量調和掃描
// Rescan asks the event loop to run one reconciliation pass over every
// watch root and waits for it to finish. The loop goroutine performs the
// actual work so rescans never race with event handling.
func (d *Daemon) Rescan(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case d.rescanReq <- ack:
	case <-d.stop:
		return fmt.Errorf("daemon is stopping")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats 回傳目前的變更計數快照
// Stats returns a snapshot of the applied-change counters.
func (d *Daemon) Stats() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

func (d *Daemon) run() {
	defer close(d.done)

	ticker := time.NewTicker(flushTick)
	defer ticker.Stop()
	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(ev)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.handleWatchError(err)

		case now := <-ticker.C:
			d.flush(now)

		case <-statsTicker.C:
			d.logStats()

		case ack := <-d.rescanReq:
			d.rescanAll()
			close(ack)

		case <-d.stop:
			d.shutdown()
			return
		}
	}
}

// shutdown drains the event channel, applies every pending change, and
// releases the watches.
func (d *Daemon) shutdown() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				break
			}
			d.handleEvent(ev)
			continue
		default:
		}
		break
	}

	// 強制沖洗：把截止時間推到未來，讓所有待處理項目立即套用
	// Force-flush everything by evaluating against a far-future instant.
	d.flush(time.Now().Add(d.debounce + d.renameWindow + time.Second))

	d.watcher.Close()
	d.logStats()
	d.log.Info("daemon stopped")
}

func (d *Daemon) logStats() {
	c := d.Stats()
	total, _ := d.st.Count()
	d.log.Info("sync statistics",
		"added", c.Added,
		"updated", c.Updated,
		"removed", c.Removed,
		"moved", c.Moved,
		"rescans", c.Rescans,
		"errors", c.Errors,
		"indexed_entries", total,
		"watched_dirs", len(d.watched),
	)
}

// withLock runs fn while holding the store writer lock. Contention is
// retried with backoff; exhausting the retries fails this batch only.
func (d *Daemon) withLock(operation string, fn func() error) error {
	if err := d.wlock.AcquireWithRetry(operation, writeAttempts, writeBackoff); err != nil {
		return err
	}
	defer d.wlock.Release()
	return fn()
}

func (d *Daemon) countError(msg string, args ...any) {
	d.mu.Lock()
	d.counters.Errors++
	d.mu.Unlock()
	d.log.Error(msg, args...)
}

// watchRoot 遞迴註冊根目錄下各層目錄的監看點，受 max_depth 限制
// watchRoot registers watches for root and its directories down to the
// configured max depth, skipping excluded subtrees.
func (d *Daemon) watchRoot(root string) error {
	root = filepath.Clean(root)
	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: watch path %s", domain.ErrNotFound, root)
		}
		return fmt.Errorf("cannot access watch path %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: watch path %s", domain.ErrNotDirectory, root)
	}

	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			d.log.Warn("skipping unreadable directory", "path", path, "error", err)
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && Excluded(d.cfg.ExcludePatterns, path) {
			return filepath.SkipDir
		}
		depth := pathDepth(root, path)
		if depth > d.cfg.MaxDepth {
			return filepath.SkipDir
		}
		d.addWatch(path, depth)
		return nil
	})
}

func pathDepth(root, path string) int {
	if path == root {
		return 0
	}
	rel := strings.TrimPrefix(path, root+string(filepath.Separator))
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (d *Daemon) addWatch(dir string, depth int) {
	if _, ok := d.watched[dir]; ok {
		return
	}
	if err := d.watcher.Add(dir); err != nil {
		d.log.Warn("cannot watch directory", "path", dir, "error", err)
		return
	}
	d.watched[dir] = depth
}

// dropWatchesUnder removes the bookkeeping for dir and everything below
// it. The kernel side is already gone when the directory was deleted;
// Remove is best effort for the rename case.
func (d *Daemon) dropWatchesUnder(dir string) {
	prefix := dir + string(filepath.Separator)
	for path := range d.watched {
		if path == dir || strings.HasPrefix(path, prefix) {
			_ = d.watcher.Remove(path)
			delete(d.watched, path)
		}
	}
}
