package harvest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// TestEscapeString tests the escaping rules for exported string fields
func TestEscapeString(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "report.txt", "report.txt"},
		{"quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `a\b`, `a\\b`},
		{"newline", "a\nb", `a\nb`},
		{"carriage return", "a\rb", `a\rb`},
		{"tab", "a\tb", `a\tb`},
		{"control dropped", "a\x01\x1fb", "ab"},
		{"mixed", "\"x\\\ny\x02", `\"x\\\ny`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := escapeString(tc.input)
			if got != tc.want {
				t.Errorf("escapeString(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// TestWriteJSONDocumentShape tests the document header and field layout
func TestWriteJSONDocumentShape(t *testing.T) {
	records := []domain.Record{
		domain.NewRecord("/data/a.txt", 11, 100, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), 0644, false),
		domain.NewRecord("/data/sub", 12, 0, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), 0755, true),
	}

	var buf bytes.Buffer
	scanTime := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	if err := WriteJSON(&buf, records, scanTime); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`"total_files": 2`,
		`"scan_time": "2024-05-02T10:30:00Z"`,
		`"format": "btrfs_metadata"`,
		`"path": "/data/a.txt"`,
		`"mtime": "2024-05-01T08:00:00Z"`,
		`"is_dir": true`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q:\n%s", want, out)
		}
	}
}

// TestJSONRoundTrip tests that awkward paths survive write and read
func TestJSONRoundTrip(t *testing.T) {
	records := []domain.Record{
		domain.NewRecord(`/data/with "quotes".txt`, 1, 10, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), 0644, false),
		domain.NewRecord(`/data/back\slash`, 2, 20, time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC), 0644, false),
		domain.NewRecord("/data/new\nline", 3, 30, time.Date(2024, 1, 2, 3, 4, 7, 0, time.UTC), 0644, false),
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, records, time.Now()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	doc, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if doc.Metadata.Format != FormatName {
		t.Errorf("format mismatch: got %s, want %s", doc.Metadata.Format, FormatName)
	}
	if len(doc.Records) != len(records) {
		t.Fatalf("record count mismatch: got %d, want %d", len(doc.Records), len(records))
	}
	for i, rec := range doc.Records {
		if rec.Path != records[i].Path {
			t.Errorf("record %d path mismatch: got %q, want %q", i, rec.Path, records[i].Path)
		}
		if !rec.ModTime.Equal(records[i].ModTime) {
			t.Errorf("record %d mtime mismatch: got %v, want %v", i, rec.ModTime, records[i].ModTime)
		}
	}
}

// TestReadJSONSkipsMalformedEntries tests that a bad mtime drops that entry only
func TestReadJSONSkipsMalformedEntries(t *testing.T) {
	input := `{
  "metadata": {"total_files": 2, "scan_time": "2024-05-02T10:30:00Z", "format": "btrfs_metadata"},
  "files": [
    {"path": "/a", "name": "a", "inode": 1, "size": 1, "mtime": "not-a-time", "mode": 420, "is_dir": false},
    {"path": "/b", "name": "b", "inode": 2, "size": 2, "mtime": "2024-05-01T08:00:00Z", "mode": 420, "is_dir": false}
  ]
}`

	doc, err := ReadJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if len(doc.Records) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(doc.Records))
	}
	if doc.Records[0].Path != "/b" {
		t.Errorf("wrong record survived: %s", doc.Records[0].Path)
	}
}

// TestParseScanTimeLegacy tests the unix-seconds fallback
func TestParseScanTimeLegacy(t *testing.T) {
	got, err := parseScanTime("1714640400")
	if err != nil {
		t.Fatalf("parseScanTime failed: %v", err)
	}
	if got.Unix() != 1714640400 {
		t.Errorf("unix seconds mismatch: got %d", got.Unix())
	}

	if _, err := parseScanTime("garbage"); err == nil {
		t.Error("expected error for unparseable scan_time")
	}
}

// TestWriteCSV tests the header and quoting rules
func TestWriteCSV(t *testing.T) {
	records := []domain.Record{
		domain.NewRecord(`/data/say "hi".txt`, 5, 64, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), 0644, false),
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "path,name,inode,size,mtime,mode,is_dir" {
		t.Errorf("header mismatch: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"/data/say ""hi"".txt"`) {
		t.Errorf("embedded quotes not doubled: %s", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",false") {
		t.Errorf("is_dir column malformed: %s", lines[1])
	}
}
