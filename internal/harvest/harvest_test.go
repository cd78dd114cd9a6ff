package harvest

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/testutil"
)

// TestScanCountsEverything tests that every file and directory below the
// root appears exactly once
func TestScanCountsEverything(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTestTree(t, root, []string{
		"a.txt",
		"b.log",
		"sub/",
		"sub/c.txt",
		"sub/deep/",
		"sub/deep/d.bin",
	})

	h := New()
	records, err := h.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	// 4 files + 2 directories, the root itself is not a record
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}

	seen := make(map[string]domain.Record)
	for _, rec := range records {
		if _, dup := seen[rec.Path]; dup {
			t.Errorf("duplicate record for %s", rec.Path)
		}
		seen[rec.Path] = rec
	}

	dir, ok := seen[filepath.Join(root, "sub")]
	if !ok {
		t.Fatal("missing record for sub directory")
	}
	if !dir.IsDir || dir.Size != 0 {
		t.Errorf("directory record malformed: %+v", dir)
	}

	file, ok := seen[filepath.Join(root, "sub", "c.txt")]
	if !ok {
		t.Fatal("missing record for sub/c.txt")
	}
	if file.IsDir || file.Size != 1 {
		t.Errorf("file record malformed: %+v", file)
	}
}

// TestScanRepeatable tests that two scans of an unchanged tree agree
func TestScanRepeatable(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTestTree(t, root, []string{"x.txt", "d/", "d/y.txt"})

	h := New()
	first, err := h.Scan(root)
	if err != nil {
		t.Fatalf("first Scan failed: %v", err)
	}
	second, err := h.Scan(root)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("scan sizes differ: %d vs %d", len(first), len(second))
	}

	sortByPath := func(rs []domain.Record) {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Path < rs[j].Path })
	}
	sortByPath(first)
	sortByPath(second)
	for i := range first {
		if first[i].Path != second[i].Path || first[i].Size != second[i].Size ||
			!first[i].ModTime.Equal(second[i].ModTime) {
			t.Errorf("record %d differs between scans: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// TestScanMissingRoot tests the error classification for a missing root
func TestScanMissingRoot(t *testing.T) {
	h := New()
	_, err := h.Scan(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestScanFileRoot tests that a non-directory root is rejected
func TestScanFileRoot(t *testing.T) {
	root := t.TempDir()
	path := testutil.CreateTestFile(t, root, "plain.txt", []byte("hello"))

	h := New()
	_, err := h.Scan(path)
	if !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
}

// TestScanSkipsUnreadableChild tests partial-failure tolerance
func TestScanSkipsUnreadableChild(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not bind for root")
	}

	root := t.TempDir()
	testutil.CreateTestTree(t, root, []string{"ok.txt", "locked/", "locked/hidden.txt"})

	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	defer os.Chmod(locked, 0o755)

	h := New()
	records, err := h.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	// ok.txt and the locked directory itself survive; its contents do not
	var sawHidden bool
	for _, rec := range records {
		if rec.Name == "hidden.txt" {
			sawHidden = true
		}
	}
	if sawHidden {
		t.Error("contents of unreadable directory should be skipped")
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

// TestStatRecord tests single-entry harvesting used by the sync daemon
func TestStatRecord(t *testing.T) {
	root := t.TempDir()
	path := testutil.CreateTestFile(t, root, "one.txt", []byte("12345"))

	rec, err := StatRecord(path)
	if err != nil {
		t.Fatalf("StatRecord failed: %v", err)
	}
	if rec.Path != path || rec.Size != 5 || rec.IsDir {
		t.Errorf("record malformed: %+v", rec)
	}
	if runtime.GOOS != "windows" && rec.Inode == 0 {
		t.Error("expected a nonzero inode on this platform")
	}

	_, err = StatRecord(filepath.Join(root, "missing"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
