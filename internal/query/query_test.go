package query

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/store"
	"github.com/lightsearch/lightsearch/internal/testutil"
)

// fixedNow anchors the date filters for every test in this file
var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, records []domain.Record) *Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.BulkLoad(records, 100); err != nil {
		t.Fatalf("BulkLoad failed: %v", err)
	}

	e := NewEngine(st)
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

func daysAgo(n int) time.Time {
	return fixedNow.AddDate(0, 0, -n)
}

// TestSearchText tests token search through the full-text mirror
func TestSearchText(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/config.yaml", 100, daysAgo(1), false),
		testutil.MakeRecord("/data/report.txt", 200, daysAgo(1), false),
		testutil.MakeRecord("/data/sub/config.json", 300, daysAgo(1), false),
	})

	results, err := e.Search(Filter{Text: "config"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	for _, rec := range results {
		if rec.Name != "config.yaml" && rec.Name != "config.json" {
			t.Errorf("unexpected match: %s", rec.Path)
		}
	}
}

// TestSearchPrefixToken tests the trailing-star prefix form
func TestSearchPrefixToken(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/logfile.txt", 1, daysAgo(1), false),
		testutil.MakeRecord("/data/logger.go", 2, daysAgo(1), false),
		testutil.MakeRecord("/data/catalog.db", 3, daysAgo(1), false),
	})

	results, err := e.Search(Filter{Text: "log*"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 prefix matches, got %d", len(results))
	}
}

// TestSearchSubstringFallback tests that a mid-word fragment with no
// token-level hit still finds matches
func TestSearchSubstringFallback(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/screenshot.png", 1, daysAgo(1), false),
		testutil.MakeRecord("/data/notes.txt", 2, daysAgo(1), false),
	})

	results, err := e.Search(Filter{Text: "reens"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "screenshot.png" {
		t.Fatalf("substring fallback failed: %+v", results)
	}
}

// TestSearchLiteralWildcards tests that % and _ in a search term match
// themselves in the substring fallback instead of acting as wildcards
func TestSearchLiteralWildcards(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/result%.csv", 1, daysAgo(1), false),
		testutil.MakeRecord("/data/resultA.csv", 2, daysAgo(1), false),
		testutil.MakeRecord("/data/notes.txt", 3, daysAgo(1), false),
		testutil.MakeRecord("/data/log_1.txt", 4, daysAgo(1), false),
		testutil.MakeRecord("/data/logs1.txt", 5, daysAgo(1), false),
	})

	results, err := e.Search(Filter{Text: "t%"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "result%.csv" {
		t.Fatalf("literal %% matched beyond its own name: %+v", results)
	}

	results, err = e.Search(Filter{Text: "g_1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "log_1.txt" {
		t.Fatalf("literal _ matched beyond its own name: %+v", results)
	}
}

// TestSearchSizeRange tests combined minimum and maximum size bounds
func TestSearchSizeRange(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/tiny.txt", 10, daysAgo(1), false),
		testutil.MakeRecord("/data/mid.txt", 200, daysAgo(1), false),
		testutil.MakeRecord("/data/big.txt", 1000, daysAgo(1), false),
	})

	results, err := e.Search(Filter{SizeMin: 100, SizeMax: 500})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "mid.txt" {
		t.Fatalf("size range filter wrong: %+v", results)
	}
}

// TestSearchDateFilters tests recent and older day windows against a
// fixed clock
func TestSearchDateFilters(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/fresh.txt", 1, daysAgo(3), false),
		testutil.MakeRecord("/data/stale.txt", 2, daysAgo(30), false),
	})

	recent, err := e.Search(Filter{RecentDays: 7})
	if err != nil {
		t.Fatalf("recent Search failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Name != "fresh.txt" {
		t.Fatalf("recent filter wrong: %+v", recent)
	}

	older, err := e.Search(Filter{OlderDays: 7})
	if err != nil {
		t.Fatalf("older Search failed: %v", err)
	}
	if len(older) != 1 || older[0].Name != "stale.txt" {
		t.Fatalf("older filter wrong: %+v", older)
	}
}

// TestSearchDirsOnly tests the directory restriction
func TestSearchDirsOnly(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/docs", 0, daysAgo(1), true),
		testutil.MakeRecord("/data/docs/a.txt", 1, daysAgo(1), false),
	})

	results, err := e.Search(Filter{DirsOnly: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || !results[0].IsDir {
		t.Fatalf("dirs only filter wrong: %+v", results)
	}
}

// TestSearchRegex tests the path regular expression post-filter
func TestSearchRegex(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/src/main.go", 1, daysAgo(1), false),
		testutil.MakeRecord("/data/src/main_test.go", 2, daysAgo(1), false),
		testutil.MakeRecord("/data/docs/readme.md", 3, daysAgo(1), false),
	})

	results, err := e.Search(Filter{Regex: `_test\.go$`})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "main_test.go" {
		t.Fatalf("regex filter wrong: %+v", results)
	}
}

// TestSearchInvalidRegex tests rejection of a malformed pattern
func TestSearchInvalidRegex(t *testing.T) {
	e := testEngine(t, nil)

	_, err := e.Search(Filter{Regex: "["})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

// TestSearchPagination tests limit and offset over a stable ordering
func TestSearchPagination(t *testing.T) {
	var records []domain.Record
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		records = append(records, testutil.MakeRecord("/data/"+name+".txt", 50, daysAgo(1), false))
	}
	e := testEngine(t, records)

	page1, err := e.Search(Filter{SizeMin: 1, Limit: 2})
	if err != nil {
		t.Fatalf("page 1 failed: %v", err)
	}
	page2, err := e.Search(Filter{SizeMin: 1, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("page 2 failed: %v", err)
	}

	if len(page1) != 2 || len(page2) != 2 {
		t.Fatalf("page sizes wrong: %d, %d", len(page1), len(page2))
	}
	seen := map[string]bool{}
	for _, rec := range append(page1, page2...) {
		if seen[rec.Path] {
			t.Errorf("path %s appears on both pages", rec.Path)
		}
		seen[rec.Path] = true
	}
}

// TestSearchEmptyFilter tests that a filter with nothing set returns
// nothing rather than the whole corpus
func TestSearchEmptyFilter(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/a.txt", 1, daysAgo(1), false),
	})

	results, err := e.Search(Filter{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty filter should match nothing, got %d", len(results))
	}
}

// TestStats tests corpus statistics aggregation
func TestStats(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/docs", 0, daysAgo(1), true),
		testutil.MakeRecord("/data/docs/a.txt", 100, daysAgo(1), false),
		testutil.MakeRecord("/data/docs/b.txt", 250, daysAgo(1), false),
	})

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 3 || stats.Files != 2 || stats.Directories != 1 {
		t.Errorf("entry counts wrong: %+v", stats)
	}
	if stats.TotalSize != 350 {
		t.Errorf("total size wrong: got %d, want 350", stats.TotalSize)
	}
	if stats.LastFullScan.IsZero() {
		t.Error("last full scan should be set after a bulk load")
	}
}

// TestBenchmark tests that the sample query set runs against a populated
// store
func TestBenchmark(t *testing.T) {
	e := testEngine(t, []domain.Record{
		testutil.MakeRecord("/data/config.yaml", 2<<20, daysAgo(1), false),
		testutil.MakeRecord("/data/logfile.txt", 10, daysAgo(2), false),
	})

	result, err := e.Benchmark()
	if err != nil {
		t.Fatalf("Benchmark failed: %v", err)
	}
	if result.Queries != len(defaultBenchQueries) {
		t.Errorf("query count wrong: got %d, want %d", result.Queries, len(defaultBenchQueries))
	}
	if result.Matches == 0 {
		t.Error("expected at least one match across the sample queries")
	}
}
