package query

import (
	"errors"
	"testing"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// TestParseSize tests the accepted size forms
func TestParseSize(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"1024", 1024},
		{"100B", 100},
		{"1K", 1 << 10},
		{"1KB", 1 << 10},
		{"100k", 100 << 10},
		{"1M", 1 << 20},
		{"1.5MB", 1<<20 + 1<<19},
		{"2G", 2 << 30},
		{"1TB", 1 << 40},
		{" 10 MB ", 10 << 20},
	}

	for _, tc := range cases {
		got, err := ParseSize(tc.input)
		if err != nil {
			t.Errorf("ParseSize(%q) failed: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// TestParseSizeInvalid tests rejection of malformed sizes
func TestParseSizeInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "12X", "MB", "--5K"} {
		_, err := ParseSize(input)
		if !errors.Is(err, domain.ErrInvalidFilter) {
			t.Errorf("ParseSize(%q) should fail with ErrInvalidFilter, got %v", input, err)
		}
	}
}

// TestFormatSize tests the display rendering thresholds
func TestFormatSize(t *testing.T) {
	cases := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.00 GB"},
	}

	for _, tc := range cases {
		if got := FormatSize(tc.input); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// TestFormatTime tests the display form and the zero-value placeholder
func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	if got := FormatTime(ts); got != "2024-06-15 09:30" {
		t.Errorf("FormatTime = %q", got)
	}
	if got := FormatTime(time.Time{}); got != "-" {
		t.Errorf("FormatTime(zero) = %q, want -", got)
	}
}
