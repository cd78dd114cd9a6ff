//go:build windows

package harvest

import "os"

// statInode is unavailable on Windows; rename correlation falls back to
// delete+insert there
func statInode(st os.FileInfo) (uint64, bool) {
	return 0, false
}
