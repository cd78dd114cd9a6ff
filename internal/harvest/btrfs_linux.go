//go:build linux

package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// btrfs ioctl request numbers (magic 0x94)
const (
	iocFsInfo     = 0x8400941f // _IOR(0x94, 31, fs_info_args[1024])
	iocTreeSearch = 0xc4009411 // _IOWR(0x94, 17, search_args[4096])
	iocInoLookup  = 0xc4009412 // _IOWR(0x94, 18, ino_lookup_args[4096])

	fsTreeObjectid = 5
	maxU64         = ^uint64(0)

	searchKeyLen = 104
	searchBufLen = 4096 - searchKeyLen
)

// searchArgs mirrors struct btrfs_ioctl_search_args
type searchArgs struct {
	treeID      uint64
	minObjectid uint64
	maxObjectid uint64
	minOffset   uint64
	maxOffset   uint64
	minTransid  uint64
	maxTransid  uint64
	minType     uint32
	maxType     uint32
	nrItems     uint32
	_           uint32
	_           [4]uint64
	buf         [searchBufLen]byte
}

// inoLookupArgs mirrors struct btrfs_ioctl_ino_lookup_args
type inoLookupArgs struct {
	treeID   uint64
	objectid uint64
	name     [4080]byte
}

// probeStructural opens the root and checks whether structural metadata
// access works there: the filesystem must answer the btrfs FS_INFO ioctl and
// permit a tree search. Open failures bubble up for the caller to treat as
// fatal; everything else maps to ErrStructuralUnsupported.
func probeStructural(root string) error {
	fd, err := unix.Open(root, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", root, err)
	}
	defer unix.Close(fd)

	var fsInfo [1024]byte
	if err := ioctl(fd, iocFsInfo, unsafe.Pointer(&fsInfo[0])); err != nil {
		return fmt.Errorf("%w: not a btrfs filesystem", domain.ErrStructuralUnsupported)
	}

	// btrfs detected; tree search still needs CAP_SYS_ADMIN
	args := newSearchArgs(0, 1)
	if err := ioctl(fd, iocTreeSearch, unsafe.Pointer(args)); err != nil {
		return fmt.Errorf("%w: tree search denied: %v", domain.ErrStructuralUnsupported, err)
	}
	return nil
}

// structuralScan reads inode items straight from the filesystem tree and
// resolves their paths with INO_LOOKUP
func (h *Harvester) structuralScan(root string) ([]domain.Record, error) {
	fd, err := unix.Open(root, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", root, err)
	}
	defer unix.Close(fd)

	var records []domain.Record
	next := uint64(0)
	for {
		args := newSearchArgs(next, 4096)
		if err := ioctl(fd, iocTreeSearch, unsafe.Pointer(args)); err != nil {
			return records, fmt.Errorf("tree search: %w", err)
		}
		if args.nrItems == 0 {
			break
		}

		items := walkSearchBuffer(args.buf[:], args.nrItems)
		for _, it := range items {
			path, err := lookupPath(fd, root, it.objectid)
			if err != nil {
				// Orphaned or unresolvable inode, skip that item only
				continue
			}
			mode := it.inode.mode
			isDir := mode&unix.S_IFMT == unix.S_IFDIR
			rec := domain.NewRecord(path, it.objectid, int64(it.inode.size),
				time.Unix(int64(it.inode.mtimeSec), 0), mode, isDir)
			records = append(records, rec)
			h.reporter.Entry(path)
			next = it.objectid
		}

		if next == maxU64 {
			break
		}
		next++
	}

	return records, nil
}

func newSearchArgs(minObjectid uint64, nrItems uint32) *searchArgs {
	return &searchArgs{
		treeID:      fsTreeObjectid,
		minObjectid: minObjectid,
		maxObjectid: maxU64,
		maxOffset:   maxU64,
		maxTransid:  maxU64,
		minType:     inodeItemKey,
		maxType:     inodeItemKey,
		nrItems:     nrItems,
	}
}

// lookupPath resolves an inode number to a path below root
func lookupPath(fd int, root string, objectid uint64) (string, error) {
	args := inoLookupArgs{treeID: fsTreeObjectid, objectid: objectid}
	if err := ioctl(fd, iocInoLookup, unsafe.Pointer(&args)); err != nil {
		return "", err
	}
	n := 0
	for n < len(args.name) && args.name[n] != 0 {
		n++
	}
	rel := string(args.name[:n])
	if rel == "" {
		return root, nil
	}
	return filepath.Join(root, rel), nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}
