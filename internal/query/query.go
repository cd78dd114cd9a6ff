// Package query translates filter criteria into index store lookups and
// ranks the results.
package query

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lightsearch/lightsearch/internal/domain"
	"github.com/lightsearch/lightsearch/internal/store"
)

// DefaultLimit applies when a filter does not specify one
const DefaultLimit = 100

// Filter describes one search. Every field is optional; set fields combine
// with AND semantics.
type Filter struct {
	// Text is a substring/wildcard match against name (and path), resolved
	// through the full-text index. A trailing * matches by prefix.
	Text string

	// Regex is applied over path as a post-filter
	Regex string

	// SizeMin/SizeMax bound size in bytes; values <= 0 are unset
	SizeMin int64
	SizeMax int64

	// RecentDays keeps entries with mtime >= now - N days
	RecentDays int

	// OlderDays keeps entries with mtime < now - N days
	OlderDays int

	// DirsOnly restricts to directories
	DirsOnly bool

	// Limit/Offset paginate; Limit defaults to DefaultLimit
	Limit  int
	Offset int
}

// Engine answers searches against one index store
type Engine struct {
	store *store.Store
	clock func() time.Time
}

// NewEngine creates a query engine over st
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st, clock: time.Now}
}

// SetClock overrides the reference clock (測試用)
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Search returns a ranked, bounded record sequence matching the filter
func (e *Engine) Search(f Filter) ([]domain.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var pathRe *regexp.Regexp
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return nil, fmt.Errorf("%w: regex: %v", domain.ErrInvalidFilter, err)
		}
		pathRe = re
	}

	// Both date bounds resolve against one clock instant
	now := e.clock()
	conds, args := buildConditions(f, now)

	if f.Text != "" {
		results, err := e.searchFTS(f.Text, conds, args, pathRe, limit, f.Offset)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
		// No token-level match: degrade to a substring scan, the way short
		// or mid-word fragments are found
		return e.searchLike(f.Text, conds, args, pathRe, limit, f.Offset)
	}

	return e.searchPlain(conds, args, pathRe, limit, f.Offset)
}

func buildConditions(f Filter, now time.Time) ([]string, []any) {
	var conds []string
	var args []any

	if f.SizeMin > 0 {
		conds = append(conds, "f.size >= ?")
		args = append(args, f.SizeMin)
	}
	if f.SizeMax > 0 {
		conds = append(conds, "f.size <= ?")
		args = append(args, f.SizeMax)
	}
	if f.RecentDays > 0 {
		cutoff := now.AddDate(0, 0, -f.RecentDays)
		conds = append(conds, "f.mtime >= ?")
		args = append(args, cutoff.Unix())
	}
	if f.OlderDays > 0 {
		cutoff := now.AddDate(0, 0, -f.OlderDays)
		conds = append(conds, "f.mtime < ?")
		args = append(args, cutoff.Unix())
	}
	if f.DirsOnly {
		conds = append(conds, "f.is_dir = 1")
	}

	return conds, args
}

const selectCols = "f.path, f.name, f.inode, f.size, f.mtime, f.mode, f.is_dir, f.indexed_at"

// searchFTS resolves the text filter through the full-text mirror, ranked
// by relevance then path
func (e *Engine) searchFTS(text string, conds []string, args []any, pathRe *regexp.Regexp, limit, offset int) ([]domain.Record, error) {
	match := buildMatch(text)
	if match == "" {
		return nil, nil
	}

	where := ""
	if len(conds) > 0 {
		where = " AND " + strings.Join(conds, " AND ")
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM files_fts fts
		JOIN files f ON f.id = fts.rowid
		WHERE files_fts MATCH ?%s
		ORDER BY bm25(files_fts), f.path ASC`, selectCols, where)

	queryArgs := append([]any{match}, args...)
	return e.collect(q, queryArgs, pathRe, limit, offset)
}

// escapeLike neutralizes LIKE metacharacters in a user-supplied needle
// so "%" and "_" match themselves under the ESCAPE clause
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// searchLike is the substring fallback over name, prefix matches first
func (e *Engine) searchLike(text string, conds []string, args []any, pathRe *regexp.Regexp, limit, offset int) ([]domain.Record, error) {
	needle := strings.Trim(text, "*")
	if needle == "" {
		return nil, nil
	}
	needle = escapeLike(needle)

	all := append([]string{`f.name LIKE '%' || ? || '%' ESCAPE '\'`}, conds...)
	q := fmt.Sprintf(`
		SELECT %s
		FROM files f
		WHERE %s
		ORDER BY
			CASE WHEN f.name LIKE ? || '%%' ESCAPE '\' THEN 1 ELSE 2 END,
			length(f.name),
			f.path ASC`, selectCols, strings.Join(all, " AND "))

	queryArgs := append([]any{needle}, args...)
	queryArgs = append(queryArgs, needle)
	return e.collect(q, queryArgs, pathRe, limit, offset)
}

// searchPlain handles filter-only searches without a text term
func (e *Engine) searchPlain(conds []string, args []any, pathRe *regexp.Regexp, limit, offset int) ([]domain.Record, error) {
	if len(conds) == 0 && pathRe == nil {
		return nil, nil
	}
	where := "1=1"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	q := fmt.Sprintf(`
		SELECT %s
		FROM files f
		WHERE %s
		ORDER BY f.mtime DESC, f.path ASC`, selectCols, where)

	return e.collect(q, args, pathRe, limit, offset)
}

// collect runs the query, applies the regex post-filter and pagination
func (e *Engine) collect(q string, args []any, pathRe *regexp.Regexp, limit, offset int) ([]domain.Record, error) {
	rows, err := e.store.DB().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []domain.Record
	skipped := 0
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if pathRe != nil && !pathRe.MatchString(rec.Path) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		results = append(results, rec)
		if len(results) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

func scanRecord(rows *sql.Rows) (domain.Record, error) {
	var rec domain.Record
	var mtime, indexedAt int64
	var isDir int
	if err := rows.Scan(&rec.Path, &rec.Name, &rec.Inode, &rec.Size, &mtime, &rec.Mode, &isDir, &indexedAt); err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.ModTime = time.Unix(mtime, 0)
	rec.IndexedAt = time.Unix(indexedAt, 0)
	rec.IsDir = isDir != 0
	return rec, nil
}

// buildMatch converts the user text into an FTS5 MATCH expression. Tokens
// are quoted to disarm FTS syntax; a trailing * becomes a prefix token.
func buildMatch(text string) string {
	fields := strings.Fields(text)
	var tokens []string
	for _, tok := range fields {
		prefix := strings.HasSuffix(tok, "*")
		tok = strings.Trim(tok, "*")
		tok = strings.ReplaceAll(tok, `"`, `""`)
		if tok == "" {
			continue
		}
		quoted := `"` + tok + `"`
		if prefix {
			quoted += "*"
		}
		tokens = append(tokens, quoted)
	}
	return strings.Join(tokens, " AND ")
}
