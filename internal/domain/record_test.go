package domain

import (
	"strings"
	"testing"
	"time"
)

// TestNewRecordBasic tests record construction from raw metadata
func TestNewRecordBasic(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	rec := NewRecord("/data/docs/report.txt", 42, 1024, mtime, 0644, false)

	if rec.Path != "/data/docs/report.txt" {
		t.Errorf("Path mismatch: got %s", rec.Path)
	}
	if rec.Name != "report.txt" {
		t.Errorf("Name mismatch: got %s, want report.txt", rec.Name)
	}
	if rec.Inode != 42 {
		t.Errorf("Inode mismatch: got %d, want 42", rec.Inode)
	}
	if rec.Size != 1024 {
		t.Errorf("Size mismatch: got %d, want 1024", rec.Size)
	}
	if !rec.ModTime.Equal(mtime) {
		t.Errorf("ModTime mismatch: got %v, want %v", rec.ModTime, mtime)
	}
	if rec.IsDir {
		t.Error("IsDir should be false for a regular file")
	}
}

// TestNewRecordDirectorySize tests that directory sizes are normalized to zero
func TestNewRecordDirectorySize(t *testing.T) {
	rec := NewRecord("/data/docs", 7, 4096, time.Now(), 0755, true)

	if !rec.IsDir {
		t.Fatal("IsDir should be true")
	}
	if rec.Size != 0 {
		t.Errorf("Directory size should be normalized to 0, got %d", rec.Size)
	}
}

// TestNewRecordTruncatesBounds tests path and name length truncation
func TestNewRecordTruncatesBounds(t *testing.T) {
	longName := strings.Repeat("n", MaxNameLen+50)
	longPath := "/" + strings.Repeat("p", MaxPathLen+100) + "/" + longName
	rec := NewRecord(longPath, 1, 10, time.Now(), 0644, false)

	if len(rec.Path) != MaxPathLen {
		t.Errorf("Path not truncated: got %d, want %d", len(rec.Path), MaxPathLen)
	}
	if len(rec.Name) > MaxNameLen {
		t.Errorf("Name not truncated: got %d, want <= %d", len(rec.Name), MaxNameLen)
	}
}

// TestNewRecordTruncatesMtime tests that sub-second precision is dropped
func TestNewRecordTruncatesMtime(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 30, 45, 999999999, time.UTC)
	rec := NewRecord("/a/b", 1, 10, mtime, 0644, false)

	if rec.ModTime.Nanosecond() != 0 {
		t.Errorf("ModTime should be truncated to seconds, got %dns", rec.ModTime.Nanosecond())
	}
	if rec.ModTime.Unix() != mtime.Unix() {
		t.Errorf("ModTime seconds changed: got %d, want %d", rec.ModTime.Unix(), mtime.Unix())
	}
}
