package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lightsearch/lightsearch/internal/checksum"
	"github.com/lightsearch/lightsearch/internal/config"
	"github.com/lightsearch/lightsearch/internal/logger"
	"github.com/lightsearch/lightsearch/internal/store"
)

// DupeGroup 一組內容完全相同的檔案
// DupeGroup is a set of files sharing identical content.
type DupeGroup struct {
	Digest string
	Size   int64
	Paths  []string
}

// Wasted returns the bytes recoverable by deduplicating the group
func (g DupeGroup) Wasted() int64 {
	return g.Size * int64(len(g.Paths)-1)
}

// DupeFinder 透過索引找出重複檔案
// DupeFinder locates duplicate files using the index as a prefilter:
// only files sharing a size with another file get hashed.
type DupeFinder struct {
	cfg    *config.Config
	hasher *checksum.Hasher
	log    logger.Logger
}

// NewDupeFinder creates a DupeFinder over cfg.
func NewDupeFinder(cfg *config.Config) (*DupeFinder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DupeFinder{
		cfg:    cfg,
		hasher: checksum.NewDefault(),
		log:    logger.With("component", "dupes"),
	}, nil
}

// Find hashes every size-collision candidate of at least minSize bytes
// and returns the groups whose content matched, largest waste first.
// Files that vanished since indexing are skipped silently.
func (f *DupeFinder) Find(ctx context.Context, minSize int64, algo checksum.Algorithm) ([]DupeGroup, error) {
	if !checksum.IsSupported(algo) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
	}

	st, err := store.Open(f.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	candidates, err := st.SizeCandidates(minSize)
	if err != nil {
		return nil, err
	}
	f.log.Info("duplicate scan started",
		"candidates", len(candidates),
		"min_size", minSize,
		"algorithm", string(algo),
	)

	start := time.Now()
	type key struct {
		size   int64
		digest string
	}
	groups := make(map[key]*DupeGroup)
	hashed := 0

	for _, rec := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		digest, err := f.hasher.SumFile(ctx, rec.Path, algo)
		if err != nil {
			f.log.Debug("skipping unreadable candidate", "path", rec.Path, "error", err)
			continue
		}
		hashed++

		k := key{size: rec.Size, digest: digest}
		g, ok := groups[k]
		if !ok {
			g = &DupeGroup{Digest: digest, Size: rec.Size}
			groups[k] = g
		}
		g.Paths = append(g.Paths, rec.Path)
	}

	var result []DupeGroup
	for _, g := range groups {
		if len(g.Paths) > 1 {
			result = append(result, *g)
		}
	}
	sortDupeGroups(result)

	f.log.Info("duplicate scan complete",
		"hashed", hashed,
		"groups", len(result),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return result, nil
}

// sortDupeGroups orders groups by recoverable bytes descending, with
// paths sorted inside each group for stable output.
func sortDupeGroups(groups []DupeGroup) {
	for i := range groups {
		sort.Strings(groups[i].Paths)
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Wasted() != groups[b].Wasted() {
			return groups[a].Wasted() > groups[b].Wasted()
		}
		return groups[a].Paths[0] < groups[b].Paths[0]
	})
}
