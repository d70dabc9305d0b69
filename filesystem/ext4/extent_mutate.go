package ext4

// InsertAfter, passed as Insert's flags, requests the new record be placed
// after the cursor rather than before it.
const InsertAfter uint32 = 1 << 0

// Replace overwrites the record at the cursor in place and writes the
// owning block (or the whole inode, at the root) back to storage. Leaf
// records get their block, physical start, and length rewritten; interior
// records only ever have their logical block and child pointer rewritten,
// with the unused field zeroed — callers cannot reorder records or have
// their ranges checked this way.
func (h *ExtentHandle) Replace(rec ExtentRecord) error {
	if !h.writable {
		return newExtentError(ErrROFilesys, "")
	}
	f := h.currentFrame()
	if !f.hasCurrent() {
		return newExtentError(ErrNoCurrentNode, "")
	}
	if f.isLeafLevel() {
		lr := encodeLeafRecord(rec)
		lr.encodeTo(f.recordBytes(f.curr))
	} else {
		ir := encodeIndexRecord(rec.LBlk, rec.PBlk)
		ir.encodeTo(f.recordBytes(f.curr))
	}
	f.dirty = true
	return h.writeBack()
}

// Insert adds rec before or after the cursor, per flags, shifting the tail
// of the frame right by one record first. It fails with CANT_INSERT_EXTENT
// if the frame is already full. If the write-back performed by the
// trailing Replace fails, Insert rolls the shift back with Delete and
// returns the original error, ignoring whatever Delete itself reports —
// a documented ambiguity in how the rollback's own failure is surfaced,
// preserved rather than resolved here.
func (h *ExtentHandle) Insert(flags uint32, rec ExtentRecord) error {
	if !h.writable {
		return newExtentError(ErrROFilesys, "")
	}
	f := h.currentFrame()
	if f.entries >= f.maxEntries {
		return newExtentError(ErrCantInsertExtent, "")
	}
	pos := f.curr
	if pos < 0 {
		pos = 0
	} else if flags&InsertAfter != 0 {
		pos = f.curr + 1
	}

	for i := int(f.entries); i > pos; i-- {
		copy(f.recordBytes(i), f.recordBytes(i-1))
	}
	f.setEntries(f.entries + 1)
	f.curr = pos
	f.left = f.entries - uint16(pos) - 1

	if err := h.Replace(rec); err != nil {
		_ = h.Delete()
		return err
	}
	return nil
}

// Delete removes the record at the cursor, shifting any following records
// left by one. If none follow, the cursor steps back one position instead;
// if the frame becomes empty, the cursor is cleared.
func (h *ExtentHandle) Delete() error {
	if !h.writable {
		return newExtentError(ErrROFilesys, "")
	}
	f := h.currentFrame()
	if !f.hasCurrent() {
		return newExtentError(ErrNoCurrentNode, "")
	}
	pos := f.curr
	if pos+1 < int(f.entries) {
		for i := pos; i < int(f.entries)-1; i++ {
			copy(f.recordBytes(i), f.recordBytes(i+1))
		}
	} else {
		f.curr--
	}
	f.setEntries(f.entries - 1)
	if f.entries == 0 {
		f.curr = -1
	}
	return h.writeBack()
}

// writeBack persists the current frame's buffer: the whole inode when the
// frame is the root, or a single filesystem block otherwise, addressed via
// the parent frame's current index record. It is a no-op in image mode,
// where there is no backing storage to write to, and when the root has no
// commit callback.
func (h *ExtentHandle) writeBack() error {
	f := h.currentFrame()
	f.dirty = false
	if h.level == 0 {
		if h.commit == nil {
			return nil
		}
		return h.commit(h.rawInode)
	}
	if h.imageMode() {
		return nil
	}
	parent := &h.frames[h.level-1]
	idx := decodeIndexRecord(parent.recordBytes(parent.curr))
	return h.fs.writeBlock(idx.childBlock(), f.buf)
}
