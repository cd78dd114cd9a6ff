package query

import (
	"fmt"
	"time"

	"github.com/lightsearch/lightsearch/internal/store"
)

// Stats summarizes the indexed corpus
type Stats struct {
	TotalEntries    int64
	Directories     int64
	Files           int64
	TotalSize       int64 // bytes, regular files only
	DBSizeBytes     int64
	LastFullScan    time.Time
	LastIncremental time.Time
}

// Stats reports totals, store size on disk and the last scan timestamps
func (e *Engine) Stats() (*Stats, error) {
	stats := &Stats{}

	err := e.store.DB().QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN is_dir = 1 THEN 1 END),
			COUNT(CASE WHEN is_dir = 0 THEN 1 END),
			COALESCE(SUM(CASE WHEN is_dir = 0 THEN size ELSE 0 END), 0)
		FROM files
	`).Scan(&stats.TotalEntries, &stats.Directories, &stats.Files, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	stats.DBSizeBytes = e.store.SizeOnDisk()

	if v, ok := e.store.GetMetadata(store.MetaLastFullScan); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			stats.LastFullScan = t
		}
	}
	if v, ok := e.store.GetMetadata(store.MetaLastIncremental); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			stats.LastIncremental = t
		}
	}

	return stats, nil
}

// BenchmarkResult reports a timed sample query run
type BenchmarkResult struct {
	Queries  int
	Matches  int
	Total    time.Duration
	PerQuery time.Duration
}

// defaultBenchQueries exercise the FTS path, the substring fallback and a
// filter-only scan
var defaultBenchQueries = []Filter{
	{Text: "config"},
	{Text: "log*"},
	{SizeMin: 1 << 20},
	{RecentDays: 30},
}

// Benchmark times a sample query set against the store
func (e *Engine) Benchmark() (*BenchmarkResult, error) {
	result := &BenchmarkResult{}
	start := time.Now()

	for _, f := range defaultBenchQueries {
		matches, err := e.Search(f)
		if err != nil {
			return nil, fmt.Errorf("benchmark query failed: %w", err)
		}
		result.Matches += len(matches)
		result.Queries++
	}

	result.Total = time.Since(start)
	if result.Queries > 0 {
		result.PerQuery = result.Total / time.Duration(result.Queries)
	}
	return result, nil
}
