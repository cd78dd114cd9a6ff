package daemon

import (
	"path/filepath"
	"strings"
)

// Excluded 判斷路徑是否命中任一排除樣式
// Excluded reports whether path matches any of the glob patterns. Each
// pattern is tried against the basename, the full path, and, when the
// pattern itself contains a separator, every trailing segment of the
// path so that patterns like ".git/*" match at any depth.
func Excluded(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
		if strings.ContainsRune(pat, filepath.Separator) && matchSuffix(pat, path) {
			return true
		}
	}
	return false
}

func matchSuffix(pattern, path string) bool {
	rest := path
	for {
		if ok, _ := filepath.Match(pattern, rest); ok {
			return true
		}
		i := strings.IndexRune(rest, filepath.Separator)
		if i < 0 {
			return false
		}
		rest = rest[i+1:]
	}
}
