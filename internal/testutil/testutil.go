package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// CreateTestTree builds a directory tree from relative paths. Entries
// ending in a separator become directories, everything else becomes a
// small file. Parent directories are created as needed.
func CreateTestTree(t *testing.T, root string, entries []string) {
	t.Helper()

	for _, entry := range entries {
		path := filepath.Join(root, entry)
		if len(entry) > 0 && entry[len(entry)-1] == '/' {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatalf("failed to create test dir %s: %v", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create test file %s: %v", path, err)
		}
	}
}

// MakeRecord builds a Record for tests without touching the filesystem
func MakeRecord(path string, size int64, mtime time.Time, isDir bool) domain.Record {
	mode := uint32(0644)
	if isDir {
		mode = 0755
	}
	return domain.NewRecord(path, uint64(len(path))+1, size, mtime, mode, isDir)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
