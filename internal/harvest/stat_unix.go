//go:build !windows

package harvest

import (
	"os"
	"syscall"
)

// statInode extracts the inode number from a stat result
func statInode(st os.FileInfo) (uint64, bool) {
	sys, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return sys.Ino, true
}
