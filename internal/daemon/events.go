package daemon

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/state"
)

// handleEvent 將單一檔案系統事件分類並排入對應的待處理佇列
// handleEvent classifies one filesystem event. Nothing is written to the
// store here; writes happen in flush once the quiet periods elapse.
func (d *Daemon) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if Excluded(d.cfg.ExcludePatterns, path) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		d.handleCreate(path)
	case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Chmod):
		d.scheduleWrite(path)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		d.handleRemove(path)
	}
}

// handleCreate resolves rename correlation first: a parked delete whose
// inode matches the new path collapses into a single move. Everything
// else becomes a debounced upsert.
func (d *Daemon) handleCreate(path string) {
	rec, err := harvest.StatRecord(path)
	if err != nil {
		// Created and gone before we could look. The matching remove
		// event cleans up whatever the store holds.
		d.log.Debug("created entry vanished before stat", "path", path)
		return
	}

	if pd, ok := d.takePendingDelete(rec.Inode); ok {
		d.applyMove(pd, rec)
		return
	}

	d.scheduleWrite(path)
	if rec.IsDir {
		d.watchNewDir(path)
		// Files may have landed between mkdir and the watch being
		// registered. A subtree harvest closes that gap.
		d.rescanSubtree(path)
	}
}

// scheduleWrite parks path for an upsert once the debounce interval
// passes without further events. Repeated events push the deadline out.
func (d *Daemon) scheduleWrite(path string) {
	d.pendingWrites[path] = pendingWrite{due: time.Now().Add(d.debounce)}
}

// handleRemove parks the removal for the rename correlation window. The
// stored inode is resolved now, before the row can change underneath us.
func (d *Daemon) handleRemove(path string) {
	delete(d.pendingWrites, path)

	isDir := false
	if _, watched := d.watched[path]; watched {
		isDir = true
		d.dropWatchesUnder(path)
	} else if rec, err := d.st.Get(path); err == nil {
		isDir = rec.IsDir
	}

	inode, _ := d.st.LookupInode(path)
	d.pendingDeletes = append(d.pendingDeletes, pendingDelete{
		path:    path,
		inode:   inode,
		isDir:   isDir,
		expires: time.Now().Add(d.renameWindow),
	})
}

// takePendingDelete removes and returns the parked delete matching inode.
func (d *Daemon) takePendingDelete(inode uint64) (pendingDelete, bool) {
	if inode == 0 {
		return pendingDelete{}, false
	}
	for i, pd := range d.pendingDeletes {
		if pd.inode == inode {
			d.pendingDeletes = append(d.pendingDeletes[:i], d.pendingDeletes[i+1:]...)
			return pd, true
		}
	}
	return pendingDelete{}, false
}

// flush 套用所有已過期的待處理寫入與刪除
// flush applies every pending write past its debounce deadline and every
// parked delete whose correlation window has expired.
func (d *Daemon) flush(now time.Time) {
	for path, pw := range d.pendingWrites {
		if now.Before(pw.due) {
			continue
		}
		delete(d.pendingWrites, path)
		d.applyWrite(path)
	}

	remaining := d.pendingDeletes[:0]
	for _, pd := range d.pendingDeletes {
		if now.Before(pd.expires) {
			remaining = append(remaining, pd)
			continue
		}
		d.applyDelete(pd)
	}
	d.pendingDeletes = remaining
}

// applyWrite re-stats path and upserts the result. The entry having
// vanished in the meantime is not an error; its remove event follows.
func (d *Daemon) applyWrite(path string) {
	rec, err := harvest.StatRecord(path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		d.countError("cannot stat changed entry", "path", path, "error", err)
		return
	}

	_, existed := d.st.LookupInode(path)
	if err := d.withLock("incremental-upsert", func() error {
		return d.st.Upsert(rec)
	}); err != nil {
		d.countError("upsert failed", "path", path, "error", err)
		return
	}

	d.mu.Lock()
	if existed {
		d.counters.Updated++
	} else {
		d.counters.Added++
	}
	d.mu.Unlock()
	d.log.Debug("entry indexed", "path", path, "size", rec.Size)
}

func (d *Daemon) applyDelete(pd pendingDelete) {
	err := d.withLock("incremental-remove", func() error {
		if pd.isDir {
			_, err := d.st.RemoveTree(pd.path)
			return err
		}
		return d.st.Remove(pd.path)
	})
	if err != nil {
		d.countError("remove failed", "path", pd.path, "error", err)
		return
	}

	d.mu.Lock()
	d.counters.Removed++
	d.mu.Unlock()
	d.log.Debug("entry removed from index", "path", pd.path, "dir", pd.isDir)
}

// applyMove collapses a parked delete and a fresh create into a rename.
// A store row that no longer matches falls back to remove plus upsert.
func (d *Daemon) applyMove(pd pendingDelete, rec domain.Record) {
	err := d.withLock("incremental-rename", func() error {
		if err := d.st.Rename(pd.path, rec.Path, rec.Inode); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if rmErr := d.st.Remove(pd.path); rmErr != nil {
				return rmErr
			}
			return d.st.Upsert(rec)
		}
		return nil
	})
	if err != nil {
		d.countError("rename failed", "from", pd.path, "to", rec.Path, "error", err)
		return
	}

	d.mu.Lock()
	d.counters.Moved++
	d.mu.Unlock()
	d.log.Info("rename correlated", "from", pd.path, "to", rec.Path, "inode", rec.Inode)

	if rec.IsDir {
		d.watchNewDir(rec.Path)
		// Descendant rows still carry the old prefix until the next
		// rescan reconciles them; re-harvest the subtree now instead.
		d.rescanSubtree(rec.Path)
		if pd.isDir {
			d.removeTreeQuietly(pd.path)
		}
	}
}

func (d *Daemon) removeTreeQuietly(root string) {
	if err := d.withLock("incremental-remove", func() error {
		_, err := d.st.RemoveTree(root)
		return err
	}); err != nil {
		d.countError("subtree cleanup failed", "path", root, "error", err)
	}
}

// watchNewDir registers a watch for a directory that appeared after
// startup, provided it sits within max depth of its watch root.
func (d *Daemon) watchNewDir(path string) {
	parent := filepath.Dir(path)
	parentDepth, ok := d.watched[parent]
	if !ok {
		return
	}
	depth := parentDepth + 1
	if depth > d.cfg.MaxDepth {
		return
	}
	d.addWatch(path, depth)
}

// handleWatchError 處理監看錯誤；事件佇列溢位時觸發全量重掃
// handleWatchError distinguishes queue overflow, which demands a full
// rescan because events were dropped, from ordinary watch errors.
func (d *Daemon) handleWatchError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		d.log.Warn("event queue overflowed, rescanning watch roots")
		d.rescanAll()
		return
	}
	d.countError("watcher error", "error", err)
}

// rescanAll 對每個監看根目錄執行全量掃描並清除過期紀錄
// rescanAll re-harvests every watch root, bulk-upserts the results, and
// deletes rows the rescan did not re-observe.
func (d *Daemon) rescanAll() {
	d.mu.Lock()
	d.counters.Rescans++
	d.mu.Unlock()

	for _, root := range d.cfg.ExpandedWatchPaths() {
		start := time.Now()
		n, err := d.rescanRoot(root)
		d.journalRescan(root, start, n, err)
	}
}

// journalRescan records one reconciliation pass in the scan journal.
// Journal failures are logged, never counted against the daemon.
func (d *Daemon) journalRescan(root string, start time.Time, records int, runErr error) {
	j, err := state.Open(filepath.Dir(config.ExpandPath(d.cfg.DatabasePath)))
	if err != nil {
		d.log.Warn("failed to open scan journal", "error", err)
		return
	}
	defer j.Close()

	run := state.Run{
		Operation: "rescan",
		Root:      root,
		StartTime: start,
		EndTime:   time.Now(),
		Status:    state.StatusSuccess,
		Records:   records,
	}
	if runErr != nil {
		run.Status = state.StatusFailed
		run.Error = runErr.Error()
	}
	if err := j.SaveRun(run); err != nil {
		d.log.Warn("failed to record rescan", "error", err)
	}
}

func (d *Daemon) rescanRoot(root string) (int, error) {
	// Rows re-observed by the scan get a fresh indexed_at stamp; rows
	// older than this instant did not survive the rescan.
	cutoff := time.Now()

	records, err := d.harvester.Scan(root)
	if err != nil {
		d.countError("rescan failed", "root", root, "error", err)
		return 0, err
	}
	records = d.filterExcluded(records)

	err = d.withLock("overflow-rescan", func() error {
		if err := d.st.BulkLoad(records, d.cfg.BatchSize); err != nil {
			return err
		}
		stale, err := d.st.DeleteStale(root, cutoff)
		if err != nil {
			return err
		}
		d.log.Info("rescan reconciled", "root", root, "records", len(records), "stale_removed", stale)
		return nil
	})
	if err != nil {
		d.countError("rescan load failed", "root", root, "error", err)
		return 0, err
	}
	return len(records), nil
}

// rescanSubtree harvests one directory subtree and upserts the result.
func (d *Daemon) rescanSubtree(root string) {
	records, err := d.harvester.Scan(root)
	if err != nil {
		d.countError("subtree scan failed", "root", root, "error", err)
		return
	}
	records = d.filterExcluded(records)

	if err := d.withLock("subtree-load", func() error {
		return d.st.BulkUpsert(records, d.cfg.BatchSize)
	}); err != nil {
		d.countError("subtree load failed", "root", root, "error", err)
		return
	}

	d.mu.Lock()
	d.counters.Added += uint64(len(records))
	d.mu.Unlock()
}

func (d *Daemon) filterExcluded(records []domain.Record) []domain.Record {
	kept := records[:0]
	for _, rec := range records {
		if !Excluded(d.cfg.ExcludePatterns, rec.Path) {
			kept = append(kept, rec)
		}
	}
	return kept
}
