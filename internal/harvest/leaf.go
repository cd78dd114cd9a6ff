package harvest

import (
	"fmt"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// Raw btrfs metadata layout constants. Offsets are into the packed inode
// item as stored on disk, all fields little-endian.
const (
	searchHeaderLen = 32 // transid, objectid, offset (u64 each), type, len (u32 each)
	inodeItemLen    = 160
	inodeItemKey    = 1 // BTRFS_INODE_ITEM_KEY

	inodeSizeOff     = 16  // u64 size
	inodeModeOff     = 52  // u32 mode
	inodeMtimeSecOff = 136 // u64 mtime.sec
)

// le64 reads a little-endian uint64 at off; ok is false when buf is too
// short. Never reinterprets memory.
func le64(buf []byte, off int) (uint64, bool) {
	if off < 0 || off+8 > len(buf) {
		return 0, false
	}
	b := buf[off : off+8]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56, true
}

// le32 reads a little-endian uint32 at off
func le32(buf []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(buf) {
		return 0, false
	}
	b := buf[off : off+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

// searchHeader is one item header in a tree-search result buffer
type searchHeader struct {
	transid  uint64
	objectid uint64
	offset   uint64
	itemType uint32
	dataLen  uint32
}

func parseSearchHeader(buf []byte) (searchHeader, bool) {
	var h searchHeader
	var ok bool
	if h.transid, ok = le64(buf, 0); !ok {
		return h, false
	}
	h.objectid, _ = le64(buf, 8)
	h.offset, _ = le64(buf, 16)
	h.itemType, _ = le32(buf, 24)
	h.dataLen, _ = le32(buf, 28)
	return h, true
}

// inodeItem holds the fields we extract from a raw inode item
type inodeItem struct {
	size     uint64
	mode     uint32
	mtimeSec uint64
}

// decodeInodeItem decodes a raw inode item. Items too short to parse are
// rejected with ErrShortItem so callers can skip just that item.
func decodeInodeItem(data []byte) (inodeItem, error) {
	if len(data) < inodeItemLen {
		return inodeItem{}, fmt.Errorf("%w: %d bytes", domain.ErrShortItem, len(data))
	}
	var item inodeItem
	item.size, _ = le64(data, inodeSizeOff)
	item.mode, _ = le32(data, inodeModeOff)
	item.mtimeSec, _ = le64(data, inodeMtimeSecOff)
	return item, nil
}

// leafItem pairs a decoded inode item with its object id (the inode number)
type leafItem struct {
	objectid uint64
	inode    inodeItem
}

// walkSearchBuffer iterates the items in a tree-search result buffer,
// returning the decoded inode items. Malformed items are skipped.
func walkSearchBuffer(buf []byte, nrItems uint32) []leafItem {
	var items []leafItem
	off := 0
	for i := uint32(0); i < nrItems; i++ {
		h, ok := parseSearchHeader(buf[off:])
		if !ok {
			break // truncated buffer, stop cleanly
		}
		off += searchHeaderLen
		if off+int(h.dataLen) > len(buf) {
			break
		}
		if h.itemType == inodeItemKey {
			item, err := decodeInodeItem(buf[off : off+int(h.dataLen)])
			if err == nil {
				items = append(items, leafItem{objectid: h.objectid, inode: item})
			}
			// Short item: skip that item only
		}
		off += int(h.dataLen)
	}
	return items
}
