package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/lock"
	"github.com/lightsearch/lightsearch/internal/progress"
	"github.com/lightsearch/lightsearch/internal/store"
	"github.com/lightsearch/lightsearch/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WatchPaths = []string{t.TempDir()}
	cfg.DatabasePath = filepath.Join(t.TempDir(), "index.db")
	return cfg
}

// TestBuildIndex tests the scan-then-load pipeline end to end
func TestBuildIndex(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	testutil.CreateTestTree(t, root, []string{"a.txt", "sub/", "sub/b.txt"})

	svc, err := NewIndexService(cfg)
	if err != nil {
		t.Fatalf("NewIndexService failed: %v", err)
	}

	n, err := svc.BuildIndex(root, progress.NullReporter{})
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 records loaded, got %d", n)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	count, _ := st.Count()
	if count != 3 {
		t.Errorf("store count mismatch: got %d, want 3", count)
	}
	if _, err := st.Get(filepath.Join(root, "sub", "b.txt")); err != nil {
		t.Errorf("nested file not indexed: %v", err)
	}
}

// TestLoadDocument tests ingesting an exported harvest JSON file
func TestLoadDocument(t *testing.T) {
	cfg := testConfig(t)

	records := []domain.Record{
		testutil.MakeRecord("/data/a.txt", 100, time.Now(), false),
		testutil.MakeRecord("/data/docs", 0, time.Now(), true),
	}
	docPath := filepath.Join(t.TempDir(), "harvest.json")
	f, err := os.Create(docPath)
	if err != nil {
		t.Fatalf("create document failed: %v", err)
	}
	if err := harvest.WriteJSON(f, records, time.Now()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	f.Close()

	svc, err := NewIndexService(cfg)
	if err != nil {
		t.Fatalf("NewIndexService failed: %v", err)
	}

	n, err := svc.LoadDocument(docPath)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records loaded, got %d", n)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	if _, err := st.Get("/data/a.txt"); err != nil {
		t.Errorf("ingested record missing: %v", err)
	}
}

// TestBuildIndexRespectsWriterLock tests that a held lock fails the load
// with the retryable classification
func TestBuildIndexRespectsWriterLock(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	testutil.CreateTestFile(t, root, "a.txt", []byte("x"))

	holder := lock.ForDatabase(cfg.DatabasePath)
	if err := holder.Acquire("daemon"); err != nil {
		t.Fatalf("holder Acquire failed: %v", err)
	}
	defer holder.Release()

	svc, err := NewIndexService(cfg)
	if err != nil {
		t.Fatalf("NewIndexService failed: %v", err)
	}

	_, err = svc.BuildIndex(root, progress.NullReporter{})
	if !errors.Is(err, domain.ErrStoreLocked) {
		t.Errorf("expected ErrStoreLocked, got %v", err)
	}
}
