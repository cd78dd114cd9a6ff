package harvest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// FormatName tags documents produced by the harvester
const FormatName = "btrfs_metadata"

const isoTimeLayout = "2006-01-02T15:04:05Z"

// escapeString escapes quote, backslash and the common control characters;
// any other control byte (<32) is dropped
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c >= 32 {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// WriteJSON serializes records as the interchange document: a metadata
// header followed by the record array
func WriteJSON(w io.Writer, records []domain.Record, scanTime time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "{\n")
	fmt.Fprintf(bw, "  \"metadata\": {\n")
	fmt.Fprintf(bw, "    \"total_files\": %d,\n", len(records))
	fmt.Fprintf(bw, "    \"scan_time\": \"%s\",\n", scanTime.UTC().Format(isoTimeLayout))
	fmt.Fprintf(bw, "    \"format\": \"%s\"\n", FormatName)
	fmt.Fprintf(bw, "  },\n")
	fmt.Fprintf(bw, "  \"files\": [\n")

	for i, rec := range records {
		if i > 0 {
			fmt.Fprintf(bw, ",\n")
		}
		fmt.Fprintf(bw, "    {\n")
		fmt.Fprintf(bw, "      \"path\": \"%s\",\n", escapeString(rec.Path))
		fmt.Fprintf(bw, "      \"name\": \"%s\",\n", escapeString(rec.Name))
		fmt.Fprintf(bw, "      \"inode\": %d,\n", rec.Inode)
		fmt.Fprintf(bw, "      \"size\": %d,\n", rec.Size)
		fmt.Fprintf(bw, "      \"mtime\": \"%s\",\n", rec.ModTime.UTC().Format(isoTimeLayout))
		fmt.Fprintf(bw, "      \"mode\": %d,\n", rec.Mode)
		fmt.Fprintf(bw, "      \"is_dir\": %t\n", rec.IsDir)
		fmt.Fprintf(bw, "    }")
	}

	fmt.Fprintf(bw, "\n  ]\n}\n")
	return bw.Flush()
}

// WriteCSV serializes records with the fixed column header; string fields
// are double-quoted with embedded quotes doubled
func WriteCSV(w io.Writer, records []domain.Record) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "path,name,inode,size,mtime,mode,is_dir")
	for _, rec := range records {
		fmt.Fprintf(bw, "%s,%s,%d,%d,%s,%d,%t\n",
			csvQuote(rec.Path),
			csvQuote(rec.Name),
			rec.Inode,
			rec.Size,
			csvQuote(rec.ModTime.UTC().Format(isoTimeLayout)),
			rec.Mode,
			rec.IsDir,
		)
	}
	return bw.Flush()
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Document is the decoded form of a harvest JSON file
type Document struct {
	Metadata Metadata
	Records  []domain.Record
}

type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	Files    []jsonRecord `json:"files"`
}

type jsonMetadata struct {
	TotalFiles int    `json:"total_files"`
	ScanTime   string `json:"scan_time"`
	Format     string `json:"format"`
}

type jsonRecord struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Inode uint64 `json:"inode"`
	Size  int64  `json:"size"`
	Mtime string `json:"mtime"`
	Mode  uint32 `json:"mode"`
	IsDir bool   `json:"is_dir"`
}

// ReadJSON decodes a harvest document previously written by WriteJSON
func ReadJSON(r io.Reader) (*Document, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid harvest document: %w", err)
	}

	out := &Document{
		Metadata: Metadata{
			TotalFiles: doc.Metadata.TotalFiles,
			Format:     doc.Metadata.Format,
		},
	}
	if t, err := parseScanTime(doc.Metadata.ScanTime); err == nil {
		out.Metadata.ScanTime = t
	}

	out.Records = make([]domain.Record, 0, len(doc.Files))
	for _, f := range doc.Files {
		mtime, err := time.Parse(isoTimeLayout, f.Mtime)
		if err != nil {
			// Malformed entry: skip that item only
			continue
		}
		out.Records = append(out.Records, domain.Record{
			Path:    f.Path,
			Name:    f.Name,
			Inode:   f.Inode,
			Size:    f.Size,
			ModTime: mtime,
			Mode:    f.Mode,
			IsDir:   f.IsDir,
		})
	}
	return out, nil
}

// parseScanTime accepts both the ISO form and the legacy unix-seconds string
func parseScanTime(s string) (time.Time, error) {
	if t, err := time.Parse(isoTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized scan_time %q", s)
}
