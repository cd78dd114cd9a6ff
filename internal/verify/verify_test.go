package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightsearch/lightsearch/internal/harvest"
	"github.com/lightsearch/lightsearch/internal/store"
	"github.com/lightsearch/lightsearch/internal/testutil"
)

// indexTree builds a tree, scans it, and loads the result into a store.
func indexTree(t *testing.T, entries []string) (string, *store.Store) {
	t.Helper()
	root := t.TempDir()
	testutil.CreateTestTree(t, root, entries)

	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	records, err := harvest.New().Scan(root)
	require.NoError(t, err)
	require.NoError(t, st.BulkLoad(records, 100))

	return root, st
}

// TestCheckCleanIndex tests a fully synchronized index
func TestCheckCleanIndex(t *testing.T) {
	root, st := indexTree(t, []string{"a.txt", "sub/", "sub/b.txt"})

	report, err := New(st).Check(root, 0)
	require.NoError(t, err)

	require.True(t, report.Clean())
	require.Equal(t, report.Checked, report.Identical)
	require.Empty(t, report.Drifts)
}

// TestCheckDetectsDrift tests the three drift states
func TestCheckDetectsDrift(t *testing.T) {
	root, st := indexTree(t, []string{"a.txt", "sub/", "sub/b.txt"})

	// Modified: content change alters the size
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("longer content"), 0644))
	// Missing: created after indexing
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0644))
	// Orphaned: removed after indexing
	require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.txt")))

	report, err := New(st).Check(root, 0)
	require.NoError(t, err)

	require.False(t, report.Clean())
	require.Equal(t, 1, report.Modified)
	require.Equal(t, 1, report.Missing)
	require.Equal(t, 1, report.Orphaned)

	states := make(map[string]EntryState)
	for _, d := range report.Drifts {
		states[d.Path] = d.State
	}
	require.Equal(t, StateModified, states[filepath.Join(root, "a.txt")])
	require.Equal(t, StateMissing, states[filepath.Join(root, "new.txt")])
	require.Equal(t, StateOrphaned, states[filepath.Join(root, "sub", "b.txt")])
}

// TestCheckBoundsDriftSamples tests the maxDrifts cap
func TestCheckBoundsDriftSamples(t *testing.T) {
	root, st := indexTree(t, []string{"a.txt", "b.txt", "c.txt"})

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.Remove(filepath.Join(root, name)))
	}

	report, err := New(st).Check(root, 2)
	require.NoError(t, err)

	require.Equal(t, 3, report.Orphaned)
	require.Len(t, report.Drifts, 2)
}

// TestCheckMissingRoot tests that an unreadable root surfaces an error
func TestCheckMissingRoot(t *testing.T) {
	_, st := indexTree(t, []string{"a.txt"})

	_, err := New(st).Check(filepath.Join(t.TempDir(), "gone"), 0)
	require.Error(t, err)
}

// TestEntryStateString tests state labels
func TestEntryStateString(t *testing.T) {
	require.Equal(t, "identical", StateIdentical.String())
	require.Equal(t, "modified", StateModified.String())
	require.Equal(t, "missing", StateMissing.String())
	require.Equal(t, "orphaned", StateOrphaned.String())
	require.Equal(t, "unknown", EntryState(99).String())
}
