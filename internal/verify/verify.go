// Package verify 比對索引與實際檔案系統狀態
// Package verify checks the index against a fresh walk of the
// filesystem and reports the drift: entries whose metadata changed,
// entries missing from the index, and index rows whose files are gone.
package verify

import (
	"fmt"

	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/store"
)

// EntryState classifies one path's relationship to the index
type EntryState int

const (
	// StateIdentical indicates the index matches the filesystem
	StateIdentical EntryState = iota
	// StateModified indicates the entry exists in both but differs
	StateModified
	// StateMissing indicates the entry is on disk but not indexed
	StateMissing
	// StateOrphaned indicates the index row has no backing file
	StateOrphaned
)

func (s EntryState) String() string {
	switch s {
	case StateIdentical:
		return "identical"
	case StateModified:
		return "modified"
	case StateMissing:
		return "missing"
	case StateOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// Drift describes one out-of-sync path
type Drift struct {
	Path  string
	State EntryState
}

// Report summarizes one verification pass over a root
type Report struct {
	Root      string
	Checked   int
	Identical int
	Modified  int
	Missing   int
	Orphaned  int
	Drifts    []Drift
}

// Clean reports whether the index fully matches the filesystem
func (r *Report) Clean() bool {
	return r.Modified == 0 && r.Missing == 0 && r.Orphaned == 0
}

// Checker compares index rows against fresh filesystem metadata
type Checker struct {
	st        *store.Store
	harvester *harvest.Harvester
	log       logger.Logger
}

// New creates a checker over the given store
func New(st *store.Store) *Checker {
	return &Checker{
		st:        st,
		harvester: harvest.New(),
		log:       logger.With("component", "verify"),
	}
}

// Check walks root and compares every entry against the index.
// maxDrifts bounds the sample paths carried in the report (0 = all).
func (c *Checker) Check(root string, maxDrifts int) (*Report, error) {
	fresh, err := c.harvester.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	indexed, err := c.st.ListUnder(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list index under %s: %w", root, err)
	}

	byPath := make(map[string]domain.Record, len(indexed))
	for _, rec := range indexed {
		byPath[rec.Path] = rec
	}

	report := &Report{Root: root}
	record := func(path string, state EntryState) {
		if maxDrifts == 0 || len(report.Drifts) < maxDrifts {
			report.Drifts = append(report.Drifts, Drift{Path: path, State: state})
		}
	}

	for _, rec := range fresh {
		report.Checked++
		idx, ok := byPath[rec.Path]
		if !ok {
			report.Missing++
			record(rec.Path, StateMissing)
			continue
		}
		delete(byPath, rec.Path)

		if compare(rec, idx) == StateIdentical {
			report.Identical++
		} else {
			report.Modified++
			record(rec.Path, StateModified)
		}
	}

	// Whatever remains in the index was not seen on disk
	for path := range byPath {
		report.Checked++
		report.Orphaned++
		record(path, StateOrphaned)
	}

	c.log.Info("verification complete",
		"root", root,
		"checked", report.Checked,
		"modified", report.Modified,
		"missing", report.Missing,
		"orphaned", report.Orphaned)

	return report, nil
}

// compare decides whether an index row still describes the on-disk entry.
// Size and second-truncated mtime carry the decision; directories match on
// existence alone since their sizes are not tracked.
func compare(fresh, indexed domain.Record) EntryState {
	if fresh.IsDir != indexed.IsDir {
		return StateModified
	}
	if fresh.IsDir {
		return StateIdentical
	}
	if fresh.Size != indexed.Size {
		return StateModified
	}
	if !fresh.ModTime.Equal(indexed.ModTime) {
		return StateModified
	}
	return StateIdentical
}
