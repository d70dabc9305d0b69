package ext4

// pathFrame is the cursor's state at a single level of the extent tree. A
// handle holds one frame per level of the tree plus one; frame 0 always
// describes the root region embedded in the inode, frames 1..maxDepth
// describe full filesystem blocks read on demand as the cursor descends.
//
// curr is the index of the currently positioned record within the frame,
// or -1 when the frame has no current record (the root before the first
// move, or a frame left empty by Delete); a sibling step at either edge
// fails and leaves curr unchanged. visitNum distinguishes a first descent into an
// interior record from a later re-visit of the same record after the
// cursor has come back up from below it.
type pathFrame struct {
	buf        []byte
	entries    uint16
	maxEntries uint16
	left       uint16
	curr       int
	visitNum   uint32
	endBlk     uint64

	// loaded is false for frames 1..maxDepth until DOWN/DOWN_AND_LAST first
	// reads the child block into buf.
	loaded bool
	// blockNumber is the filesystem block this frame's buf was read from,
	// valid once loaded is true and the frame is not frame 0.
	blockNumber uint64
	// dirty marks a frame whose buf has been mutated by Replace/Insert/
	// Delete and not yet written back.
	dirty bool
}

// recordOffset returns the byte offset of record index idx within buf,
// accounting for the 12-byte header.
func recordOffset(idx int) int {
	return extentTreeHeaderLength + idx*extentTreeEntryLength
}

func (f *pathFrame) recordBytes(idx int) []byte {
	off := recordOffset(idx)
	return f.buf[off : off+extentTreeEntryLength]
}

func (f *pathFrame) header() extentNodeHeader {
	return decodeExtentNodeHeader(f.buf)
}

func (f *pathFrame) isLeafLevel() bool {
	return f.header().depth == 0
}

func (f *pathFrame) hasCurrent() bool {
	return f.curr >= 0 && f.curr < int(f.entries)
}

// nextSiblingBlock returns the logical block of the index record after the
// current one, or nil when the current record is the last, used by
// interior-level decoding to find where the current record's range ends.
func (f *pathFrame) nextSiblingBlock() *uint32 {
	if f.curr+1 >= int(f.entries) {
		return nil
	}
	next := decodeIndexRecord(f.recordBytes(f.curr + 1))
	b := next.block
	return &b
}

// setEntries stores n as the frame's entry count and in its header in buf, used
// after Insert/Delete change the record count.
func (f *pathFrame) setEntries(n uint16) {
	f.entries = n
	h := f.header()
	h.entries = n
	h.encodeTo(f.buf)
}
