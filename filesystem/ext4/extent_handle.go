package ext4

import (
	"fmt"
)

// extentInodeFlagOffset and extentInodeBlockOffset locate the flags word
// and the 60-byte extent-tree root region within a raw on-disk inode,
// matching the layout inode.go's inodeFromBytes/toBytes use.
const (
	extentInodeFlagOffset  = 0x20
	extentInodeBlockOffset = 0x28
	extentInodeBlockLength = 60
	extentInodeSizeOffset  = 0x4
)

// ExtentHandle is a cursor into a single inode's extent tree. It owns a
// private copy of the inode's on-disk bytes (frame 0 aliases the extent
// root region within that copy) and lazily-allocated buffers for every
// non-root level touched during traversal. A handle is not safe for
// concurrent use; callers serialize access to handles opened on the same
// inode themselves.
type ExtentHandle struct {
	fs          *FileSystem
	inodeNumber uint32
	writable    bool

	rawInode []byte // the inode's on-disk bytes; frame 0 aliases its extent root region
	commit   func([]byte) error

	maxDepth int
	level    int
	frames   []pathFrame
}

// imageMode reports whether this handle has no filesystem, or a filesystem
// with no backing storage. In image mode, DOWN/DOWN_AND_LAST
// zero-fill a freshly allocated child buffer instead of reading through I/O.
func (h *ExtentHandle) imageMode() bool {
	return h.fs == nil || h.fs.backend == nil
}

// OpenExtentHandle opens a cursor on inodeNumber's extent tree.
func OpenExtentHandle(fs *FileSystem, inodeNumber uint32) (*ExtentHandle, error) {
	if fs == nil || fs.superblock == nil {
		return nil, newExtentError(ErrExtentHeaderBad, "filesystem has no superblock")
	}
	sb := fs.superblock
	if inodeNumber == 0 || uint64(inodeNumber) > uint64(sb.inodeCount) {
		return nil, newExtentError(ErrBadInodeNum, fmt.Sprintf("inode %d, have %d inodes", inodeNumber, sb.inodeCount))
	}
	raw, err := fs.readInodeRaw(inodeNumber)
	if err != nil {
		return nil, err
	}
	h, err := newHandleFromRawInode(fs, inodeNumber, raw, func(buf []byte) error {
		return fs.writeInodeRaw(inodeNumber, buf)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// newHandleFromRawInode builds a handle whose frame 0 aliases the extent
// root region of an owned raw inode buffer. commit, when non-nil, is how
// Replace/Insert/Delete persist a frame-0 mutation back to storage;
// OpenExtentHandle passes one that rewrites the inode on disk. With a nil
// commit a frame-0 mutation stays in the handle's own buffer.
func newHandleFromRawInode(fs *FileSystem, inodeNumber uint32, raw []byte, commit func([]byte) error) (*ExtentHandle, error) {
	if len(raw) < extentInodeBlockOffset+extentInodeBlockLength {
		return nil, newExtentError(ErrBadInodeNum, "raw inode too short")
	}
	flagsWord := le32(raw[extentInodeFlagOffset : extentInodeFlagOffset+4])
	if flagsWord&uint32(inodeFlagUsesExtents) == 0 {
		return nil, newExtentError(ErrInodeNotExtent, "")
	}

	rootBuf := raw[extentInodeBlockOffset : extentInodeBlockOffset+extentInodeBlockLength]
	header, err := verifyExtentHeader(rootBuf, extentInodeBlockLength)
	if err != nil {
		return nil, err
	}

	sizeLow := le32(raw[0x4:0x8])
	sizeHigh := le32(raw[0x6c:0x70])
	var blockSize uint32 = 4096
	if fs != nil && fs.superblock != nil {
		blockSize = fs.superblock.blockSize
	}
	sizeBytes := uint64(sizeHigh)<<32 | uint64(sizeLow)
	endBlk := ceilDiv(sizeBytes, uint64(blockSize))

	maxDepth := int(header.depth)
	frames := make([]pathFrame, maxDepth+1)
	frames[0] = pathFrame{
		buf:        rootBuf,
		entries:    header.entries,
		maxEntries: header.max,
		left:       header.entries,
		curr:       -1,
		visitNum:   1,
		endBlk:     endBlk,
		loaded:     true,
	}

	writable := false
	if fs != nil && fs.backend != nil {
		if _, werr := fs.backend.Writable(); werr == nil {
			writable = true
		}
	}

	return &ExtentHandle{
		fs:          fs,
		inodeNumber: inodeNumber,
		writable:    writable,
		rawInode:    raw,
		commit:      commit,
		maxDepth:    maxDepth,
		level:       0,
		frames:      frames,
	}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Free releases the handle's buffers. The Go runtime reclaims the memory
// regardless; Free exists so callers that mirror the open/get/free idiom
// from the wider collaborator contract (§6) have a symmetric call, and so a
// handle can be marked unusable to catch use-after-free bugs in tests.
func (h *ExtentHandle) Free() {
	h.frames = nil
	h.rawInode = nil
	h.fs = nil
}

// currentFrame returns the frame at the cursor's current level.
func (h *ExtentHandle) currentFrame() *pathFrame {
	return &h.frames[h.level]
}
