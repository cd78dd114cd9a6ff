package service

import (
	"context"
	"testing"

	"github.com/lightsearch/lightsearch/internal/checksum"
	"github.com/lightsearch/lightsearch/internal/progress"
	"github.com/lightsearch/lightsearch/internal/testutil"
)

// TestFindDuplicates tests size prefiltering and content grouping
func TestFindDuplicates(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()

	// Two identical files, one same-size decoy, one unique size
	testutil.CreateTestFile(t, root, "copy1.dat", []byte("identical content"))
	testutil.CreateTestFile(t, root, "copy2.dat", []byte("identical content"))
	testutil.CreateTestFile(t, root, "decoy.dat", []byte("different bytes!!"))
	testutil.CreateTestFile(t, root, "alone.dat", []byte("x"))

	svc, err := NewIndexService(cfg)
	if err != nil {
		t.Fatalf("NewIndexService failed: %v", err)
	}
	if _, err := svc.BuildIndex(root, progress.NullReporter{}); err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	finder, err := NewDupeFinder(cfg)
	if err != nil {
		t.Fatalf("NewDupeFinder failed: %v", err)
	}

	groups, err := finder.Find(context.Background(), 1, checksum.MD5)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("got %d duplicate groups, want 1", len(groups))
	}
	g := groups[0]
	if len(g.Paths) != 2 {
		t.Errorf("got %d paths in group, want 2", len(g.Paths))
	}
	if g.Size != int64(len("identical content")) {
		t.Errorf("group size = %d, want %d", g.Size, len("identical content"))
	}
	if g.Wasted() != g.Size {
		t.Errorf("Wasted() = %d, want %d", g.Wasted(), g.Size)
	}
}

// TestFindRespectsMinSize tests the size floor
func TestFindRespectsMinSize(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()

	testutil.CreateTestFile(t, root, "small1.dat", []byte("dup"))
	testutil.CreateTestFile(t, root, "small2.dat", []byte("dup"))

	svc, err := NewIndexService(cfg)
	if err != nil {
		t.Fatalf("NewIndexService failed: %v", err)
	}
	if _, err := svc.BuildIndex(root, progress.NullReporter{}); err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	finder, err := NewDupeFinder(cfg)
	if err != nil {
		t.Fatalf("NewDupeFinder failed: %v", err)
	}

	groups, err := finder.Find(context.Background(), 1024, checksum.MD5)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("got %d groups below the size floor, want 0", len(groups))
	}
}

// TestFindRejectsUnknownAlgorithm tests algorithm validation
func TestFindRejectsUnknownAlgorithm(t *testing.T) {
	finder, err := NewDupeFinder(testConfig(t))
	if err != nil {
		t.Fatalf("NewDupeFinder failed: %v", err)
	}
	if _, err := finder.Find(context.Background(), 0, checksum.Algorithm("crc32")); err == nil {
		t.Error("expected error for unknown algorithm, got nil")
	}
}
