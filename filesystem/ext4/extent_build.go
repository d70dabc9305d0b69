package ext4

import "fmt"

// extentList flattens an inode's extent tree into an ordered list of
// block runs, for the callers that want "all the blocks this file owns"
// rather than a cursor into the tree. It walks the whole tree once rather
// than going through ExtentHandle, since it has no need to stop partway
// or mutate anything.
func (i *inode) extentList(fs *FileSystem) (extents, error) {
	root := i.extentRoot[:]
	h, err := verifyExtentHeader(root, extentInodeBlockLength)
	if err != nil {
		return nil, err
	}
	return walkExtentNode(root, h, fs)
}

func walkExtentNode(buf []byte, h extentNodeHeader, fs *FileSystem) (extents, error) {
	var out extents
	if h.depth == 0 {
		for idx := 0; idx < int(h.entries); idx++ {
			lr := decodeLeafRecord(buf[recordOffset(idx) : recordOffset(idx)+extentTreeEntryLength])
			length := lr.len
			if length > extentLeafUninitBit {
				length -= extentLeafUninitBit
			}
			out = append(out, extent{
				fileBlock:     lr.block,
				startingBlock: uint64(lr.startHi)<<32 | uint64(lr.start),
				count:         length,
			})
		}
		return out, nil
	}
	for idx := 0; idx < int(h.entries); idx++ {
		ir := decodeIndexRecord(buf[recordOffset(idx) : recordOffset(idx)+extentTreeEntryLength])
		childBlock := ir.childBlock()
		childBuf, err := fs.readBlock(childBlock)
		if err != nil {
			return nil, fmt.Errorf("could not read extent tree block %d: %w", childBlock, err)
		}
		childHeader, err := verifyExtentHeader(childBuf, len(childBuf))
		if err != nil {
			return nil, err
		}
		childExtents, err := walkExtentNode(childBuf, childHeader, fs)
		if err != nil {
			return nil, err
		}
		out = append(out, childExtents...)
	}
	return out, nil
}

// buildRootExtentBytes encodes ext as a freshly created inode's extent
// tree, returning the 60-byte i_block region to store in the inode. When
// ext fits in the root's own record capacity, it is written there
// directly and the tree has depth 0. Otherwise additional filesystem
// blocks are allocated to hold the leaf records, and the root becomes a
// depth-1 index over them.
func buildRootExtentBytes(ext extents, fs *FileSystem) ([60]byte, error) {
	var root [60]byte
	rootCapacity := capacityEntries(extentInodeBlockLength)

	if len(ext) <= int(rootCapacity) {
		encodeLeafNode(root[:], ext, rootCapacity)
		return root, nil
	}

	blockSize := fs.superblock.blockSize
	leafCapacity := int(capacityEntries(int(blockSize)))
	numLeafBlocks := (len(ext) + leafCapacity - 1) / leafCapacity
	if numLeafBlocks > int(rootCapacity) {
		return root, fmt.Errorf("extent list of %d runs needs %d leaf blocks, more than the root can index (%d)", len(ext), numLeafBlocks, rootCapacity)
	}

	treeExtents, err := fs.allocateExtents(uint64(numLeafBlocks)*uint64(blockSize), nil)
	if err != nil {
		return root, fmt.Errorf("could not allocate blocks for extent tree nodes: %w", err)
	}
	leafBlocks := flattenBlockNumbers(*treeExtents, numLeafBlocks)
	if len(leafBlocks) < numLeafBlocks {
		return root, fmt.Errorf("allocated only %d blocks for %d needed extent tree leaf nodes", len(leafBlocks), numLeafBlocks)
	}

	indexRecords := make([]extentIndexRecord, 0, numLeafBlocks)
	for n := 0; n < numLeafBlocks; n++ {
		start := n * leafCapacity
		end := start + leafCapacity
		if end > len(ext) {
			end = len(ext)
		}
		chunk := ext[start:end]

		buf := make([]byte, blockSize)
		encodeLeafNode(buf, chunk, capacityEntries(int(blockSize)))
		if err := fs.writeBlock(leafBlocks[n], buf); err != nil {
			return root, fmt.Errorf("could not write extent leaf block: %w", err)
		}
		indexRecords = append(indexRecords, encodeIndexRecord(uint64(chunk[0].fileBlock), leafBlocks[n]))
	}

	h := extentNodeHeader{magic: extentHeaderSignature, entries: uint16(len(indexRecords)), max: rootCapacity, depth: 1}
	h.encodeTo(root[:])
	for n, rec := range indexRecords {
		rec.encodeTo(root[recordOffset(n) : recordOffset(n)+extentTreeEntryLength])
	}
	return root, nil
}

func encodeLeafNode(buf []byte, ext extents, capacity uint16) {
	h := extentNodeHeader{magic: extentHeaderSignature, entries: uint16(len(ext)), max: capacity, depth: 0}
	h.encodeTo(buf)
	for idx, e := range ext {
		lr := extentLeafRecord{
			block:   e.fileBlock,
			len:     e.count,
			startHi: uint16(e.startingBlock >> 32),
			start:   uint32(e.startingBlock),
		}
		lr.encodeTo(buf[recordOffset(idx) : recordOffset(idx)+extentTreeEntryLength])
	}
}

func flattenBlockNumbers(ext extents, n int) []uint64 {
	out := make([]uint64, 0, n)
	for _, e := range ext {
		for b := uint64(0); b < uint64(e.count); b++ {
			out = append(out, e.startingBlock+b)
			if len(out) == n {
				return out
			}
		}
	}
	return out
}
