// Package harvest extracts per-file metadata for a subtree. It attempts a
// privileged structural scan of the filesystem's own metadata tree and
// degrades to a plain depth-first traversal when that is unavailable.
package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/progress"
)

// Strategy identifies how a harvest reads metadata
type Strategy int

const (
	// StrategyStructural reads inode items directly from the filesystem
	// metadata tree (btrfs tree search)
	StrategyStructural Strategy = iota
	// StrategyTraversal walks directories with lstat
	StrategyTraversal
)

func (s Strategy) String() string {
	if s == StrategyStructural {
		return "structural"
	}
	return "traversal"
}

// Harvester produces Records for every reachable entry under a root
type Harvester struct {
	log      logger.Logger
	reporter progress.Reporter
}

// New creates a Harvester reporting through the global logger
func New() *Harvester {
	return &Harvester{
		log:      logger.Get(),
		reporter: progress.NullReporter{},
	}
}

// SetReporter installs a progress reporter
func (h *Harvester) SetReporter(r progress.Reporter) {
	if r != nil {
		h.reporter = r
	}
}

// Scan harvests the subtree rooted at root and returns the records as an
// owned slice. The root being unreachable or not a directory is fatal;
// unreadable children are skipped with a warning.
func (h *Harvester) Scan(root string) ([]domain.Record, error) {
	root = filepath.Clean(root)

	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, root)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, root)
		}
		return nil, fmt.Errorf("cannot access %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, root)
	}

	// One-shot strategy selection: resolve once, log the choice, proceed.
	strategy := h.selectStrategy(root)
	h.log.Info("harvest strategy resolved", "root", root, "strategy", strategy.String())

	h.reporter.Start(root)

	var records []domain.Record
	if strategy == StrategyStructural {
		records, err = h.structuralScan(root)
		if err != nil {
			// Structural access broke mid-scan; the traversal result is
			// still correct, just slower.
			h.log.Warn("structural scan failed, retrying with traversal", "root", root, "error", err)
			records = records[:0]
			err = h.crawl(root, &records)
		}
	} else {
		err = h.crawl(root, &records)
	}
	if err != nil {
		return nil, err
	}

	h.reporter.Complete(len(records))
	return records, nil
}

// selectStrategy probes for structural metadata access. Any failure short of
// an unreachable root degrades to traversal with a diagnostic.
func (h *Harvester) selectStrategy(root string) Strategy {
	if err := probeStructural(root); err != nil {
		h.log.Warn("structural metadata access unavailable, falling back to traversal",
			"root", root, "reason", err)
		return StrategyTraversal
	}
	return StrategyStructural
}

// crawl is the traversal fallback: depth-first, no symlink following,
// partial-failure tolerant.
func (h *Harvester) crawl(dir string, records *[]domain.Record) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// The top-level root was already validated; failing here means a
		// child directory became unreadable. Skip it.
		h.log.Warn("skipping unreadable directory", "path", dir, "error", err)
		h.reporter.Error(dir, err)
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		st, err := os.Lstat(path)
		if err != nil {
			// Permission problem or race-deleted entry. Continue with
			// remaining siblings.
			h.log.Warn("skipping unreadable entry", "path", path, "error", err)
			h.reporter.Error(path, err)
			continue
		}

		*records = append(*records, recordFromStat(path, st))
		h.reporter.Entry(path)

		if st.IsDir() {
			if err := h.crawl(path, records); err != nil {
				return err
			}
		}
	}

	return nil
}

func recordFromStat(path string, st os.FileInfo) domain.Record {
	var inode uint64
	if ino, ok := statInode(st); ok {
		inode = ino
	}
	return domain.NewRecord(path, inode, st.Size(), st.ModTime(), uint32(st.Mode()), st.IsDir())
}

// StatRecord builds a single Record for path, used by the live sync daemon
// for create/modify events
func StatRecord(path string) (domain.Record, error) {
	st, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return domain.Record{}, err
	}
	return recordFromStat(path, st), nil
}

// Metadata describes one harvest run, serialized as the JSON document header
type Metadata struct {
	TotalFiles int       `json:"total_files"`
	ScanTime   time.Time `json:"scan_time"`
	Format     string    `json:"format"`
}
