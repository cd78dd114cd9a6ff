// Package service 整合採集、索引與常駐程序的應用層流程
// Package service wires the harvester, the store, and the daemon into
// application level flows used by the CLI commands.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/lock"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/progress"
	"github.com/lightsearch/lightsearch/internal/state"
	"github.com/lightsearch/lightsearch/internal/store"
)

// Journaled operation names
const (
	OpFullScan     = "full-scan"
	OpDocumentLoad = "document-load"
	OpRescan       = "rescan"
)

const (
	loadLockAttempts = 5
	loadLockBackoff  = 200 * time.Millisecond
)

// IndexService 負責建立與載入索引的批次流程
// IndexService runs the batch flows that build or ingest an index.
type IndexService struct {
	cfg *config.Config
	log logger.Logger
}

// NewIndexService creates an IndexService over cfg.
func NewIndexService(cfg *config.Config) (*IndexService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &IndexService{
		cfg: cfg,
		log: logger.With("component", "index"),
	}, nil
}

// BuildIndex 掃描 root 並將結果載入資料庫
// BuildIndex scans root and bulk-loads the result into the configured
// database under the writer lock. Returns the number of records loaded.
func (s *IndexService) BuildIndex(root string, reporter progress.Reporter) (int, error) {
	h := harvest.New()
	h.SetReporter(reporter)

	start := time.Now()
	records, err := h.Scan(root)
	if err != nil {
		s.recordRun(OpFullScan, root, start, 0, err)
		return 0, err
	}
	s.log.Info("harvest complete",
		"root", root,
		"records", len(records),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	if err := s.loadRecords(records); err != nil {
		s.recordRun(OpFullScan, root, start, 0, err)
		return 0, err
	}
	s.recordRun(OpFullScan, root, start, len(records), nil)
	return len(records), nil
}

// LoadDocument 將先前匯出的採集 JSON 文件匯入資料庫
// LoadDocument ingests a previously exported harvest JSON document.
func (s *IndexService) LoadDocument(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open harvest document: %w", err)
	}
	defer f.Close()

	doc, err := harvest.ReadJSON(f)
	if err != nil {
		return 0, fmt.Errorf("parse harvest document %s: %w", path, err)
	}
	s.log.Info("harvest document parsed",
		"path", path,
		"records", len(doc.Records),
		"format", doc.Metadata.Format,
	)

	start := time.Now()
	if err := s.loadRecords(doc.Records); err != nil {
		s.recordRun(OpDocumentLoad, path, start, 0, err)
		return 0, err
	}
	s.recordRun(OpDocumentLoad, path, start, len(doc.Records), nil)
	return len(doc.Records), nil
}

// RebuildRoot 重新掃描 root 並讓索引與檔案系統一致
// RebuildRoot re-harvests root and reconciles the index with it:
// re-observed rows get fresh stamps, rows the scan did not see are
// removed. Returns the number of records re-observed.
func (s *IndexService) RebuildRoot(root string) (int, error) {
	h := harvest.New()

	start := time.Now()
	cutoff := time.Now()
	records, err := h.Scan(root)
	if err != nil {
		s.recordRun(OpRescan, root, start, 0, err)
		return 0, err
	}

	err = func() error {
		wlock := lock.ForDatabase(s.cfg.DatabasePath)
		if err := wlock.AcquireWithRetry("reconcile", loadLockAttempts, loadLockBackoff); err != nil {
			return err
		}
		defer wlock.Release()

		st, err := store.Open(s.cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.BulkLoad(records, s.cfg.BatchSize); err != nil {
			return err
		}
		stale, err := st.DeleteStale(root, cutoff)
		if err != nil {
			return err
		}
		s.log.Info("index reconciled",
			"root", root,
			"records", len(records),
			"stale_removed", stale,
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
		return nil
	}()
	if err != nil {
		s.recordRun(OpRescan, root, start, 0, err)
		return 0, err
	}

	s.recordRun(OpRescan, root, start, len(records), nil)
	return len(records), nil
}

// recordRun appends one entry to the scan journal. Journal failures are
// logged, never surfaced: losing a history row must not fail the load.
func (s *IndexService) recordRun(op, root string, start time.Time, records int, runErr error) {
	j, err := state.Open(filepath.Dir(config.ExpandPath(s.cfg.DatabasePath)))
	if err != nil {
		s.log.Warn("failed to open scan journal", "error", err)
		return
	}
	defer j.Close()

	run := state.Run{
		Operation: op,
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
		s.log.Warn("failed to record scan run", "error", err)
	}
}

// loadRecords bulk-loads records and runs the post-load optimize pass.
func (s *IndexService) loadRecords(records []domain.Record) error {
	wlock := lock.ForDatabase(s.cfg.DatabasePath)
	if err := wlock.AcquireWithRetry("bulk-load", loadLockAttempts, loadLockBackoff); err != nil {
		return err
	}
	defer wlock.Release()

	st, err := store.Open(s.cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	if err := st.BulkLoad(records, s.cfg.BatchSize); err != nil {
		return err
	}
	if err := st.Optimize(); err != nil {
		s.log.Warn("post-load optimize failed", "error", err)
	}

	s.log.Info("index loaded",
		"records", len(records),
		"database", s.cfg.DatabasePath,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}
