package ext4

// Op identifies a cursor movement requested of Get.
type Op int

const (
	OpCurrent Op = iota
	OpRoot
	OpFirstSib
	OpLastSib
	OpNextSib
	OpPrevSib
	OpUp
	OpDown
	OpDownAndLast
	OpNext
	OpPrev
	OpNextLeaf
	OpPrevLeaf
	OpLastLeaf
)

// direction is the internal axis NEXT/PREV-family compound moves walk along.
type direction int

const (
	dirNext direction = iota
	dirPrev
)

// Get executes a single cursor operation and returns the extent record at
// the resulting position. flags is reserved for future per-call modifiers;
// it is accepted and ignored today.
func (h *ExtentHandle) Get(op Op, flags uint32) (ExtentRecord, error) {
	switch op {
	case OpCurrent:
		return h.decodeCurrent()
	case OpRoot:
		return h.doRoot()
	case OpFirstSib:
		return h.doFirstSib()
	case OpLastSib:
		return h.doLastSib()
	case OpNextSib:
		return h.doSiblingStep(dirNext)
	case OpPrevSib:
		return h.doSiblingStep(dirPrev)
	case OpUp:
		if err := h.ascend(false); err != nil {
			return ExtentRecord{}, err
		}
		return h.decodeCurrent()
	case OpDown:
		if err := h.descend(false); err != nil {
			return ExtentRecord{}, err
		}
		return h.decodeCurrent()
	case OpDownAndLast:
		if err := h.descend(true); err != nil {
			return ExtentRecord{}, err
		}
		return h.decodeCurrent()
	case OpNext:
		return h.moveCompound(dirNext)
	case OpPrev:
		return h.moveCompound(dirPrev)
	case OpNextLeaf:
		return h.moveToLeaf(dirNext)
	case OpPrevLeaf:
		return h.moveToLeaf(dirPrev)
	case OpLastLeaf:
		return h.doLastLeaf()
	default:
		return ExtentRecord{}, newExtentError(ErrOpNotSupported, "")
	}
}

// doRoot resets the cursor to the root frame's first record. The root's
// visit_num is cleared so that the very next NEXT/PREV compound move
// descends into the first child rather than treating the root as already
// explored; see DESIGN.md for why this diverges from the literal open-time
// seed of visit_num = 1.
func (h *ExtentHandle) doRoot() (ExtentRecord, error) {
	h.level = 0
	f := &h.frames[0]
	f.left = f.entries
	f.visitNum = 0
	if f.entries == 0 {
		f.curr = -1
		return ExtentRecord{}, newExtentError(ErrNoCurrentNode, "empty root")
	}
	f.curr = 0
	f.left = f.entries - 1
	return h.decodeCurrent()
}

func (h *ExtentHandle) doFirstSib() (ExtentRecord, error) {
	f := h.currentFrame()
	if f.entries == 0 {
		f.curr = -1
		return ExtentRecord{}, newExtentError(ErrNoCurrentNode, "")
	}
	f.curr = 0
	f.left = f.entries - 1
	return h.decodeCurrent()
}

func (h *ExtentHandle) doLastSib() (ExtentRecord, error) {
	f := h.currentFrame()
	if f.entries == 0 {
		f.curr = -1
		return ExtentRecord{}, newExtentError(ErrNoCurrentNode, "")
	}
	f.curr = int(f.entries) - 1
	f.left = 0
	return h.decodeCurrent()
}

func (h *ExtentHandle) doSiblingStep(dir direction) (ExtentRecord, error) {
	f := h.currentFrame()
	if !f.hasCurrent() {
		return ExtentRecord{}, newExtentError(ErrNoCurrentNode, "")
	}
	if dir == dirNext {
		if f.curr+1 >= int(f.entries) {
			return ExtentRecord{}, newExtentError(ErrExtentNoNext, "")
		}
		f.curr++
		f.left--
	} else {
		if f.curr == 0 {
			return ExtentRecord{}, newExtentError(ErrExtentNoPrev, "")
		}
		f.curr--
		f.left++
	}
	f.visitNum = 0
	return h.decodeCurrent()
}

// ascend moves the cursor up one level. forceVisitZero implements the
// documented behavior where ascending as a step of a PREV-family compound
// move (and, for symmetry, a NEXT-family one) clears the landed frame's
// visit_num so a subsequent descend-or-sibling decision re-examines it
// fresh; a bare, caller-issued UP leaves visit_num untouched.
func (h *ExtentHandle) ascend(forceVisitZero bool) error {
	if h.level == 0 {
		return newExtentError(ErrExtentNoUp, "")
	}
	h.level--
	if forceVisitZero {
		h.frames[h.level].visitNum = 0
	}
	return nil
}

// descend moves the cursor down through the current index record. last
// selects DOWN_AND_LAST positioning.
func (h *ExtentHandle) descend(last bool) error {
	if h.level >= h.maxDepth {
		return newExtentError(ErrExtentNoDown, "at max depth")
	}
	f := h.currentFrame()
	if !f.hasCurrent() {
		return newExtentError(ErrExtentNoDown, "no current record")
	}
	idx := decodeIndexRecord(f.recordBytes(f.curr))
	childBlock := idx.childBlock()

	childLevel := h.level + 1
	childIsInterior := childLevel < h.maxDepth

	var buf []byte
	if h.imageMode() {
		buf = make([]byte, h.blockSize())
	} else {
		read, err := h.fs.readBlock(childBlock)
		if err != nil {
			return err
		}
		buf = read
	}
	childHeader, err := verifyExtentHeader(buf, len(buf))
	if err != nil {
		return err
	}

	childEndBlk := f.endBlk
	if next := f.nextSiblingBlock(); next != nil {
		childEndBlk = uint64(*next)
	}

	child := pathFrame{
		buf:         buf,
		entries:     childHeader.entries,
		maxEntries:  childHeader.max,
		curr:        -1,
		endBlk:      childEndBlk,
		loaded:      true,
		blockNumber: childBlock,
	}
	if childHeader.entries > 0 {
		if last {
			child.curr = int(childHeader.entries) - 1
			child.left = 0
		} else {
			child.curr = 0
			child.left = childHeader.entries - 1
		}
	}
	if last && childIsInterior {
		child.visitNum = 1
	} else {
		child.visitNum = 0
	}

	h.frames[childLevel] = child
	h.level = childLevel
	return nil
}

func (h *ExtentHandle) blockSize() uint32 {
	if h.fs != nil && h.fs.superblock != nil {
		return h.fs.superblock.blockSize
	}
	return 4096
}

// moveCompound implements the single-step NEXT/PREV decision procedure of
// §4.3: one descend, one sibling step, or one ascend-and-retry.
//
// cameFromAscend tracks, within this call only, whether the current loop
// iteration is examining a frame we just ascended back into. On that first
// post-ascend iteration a sibling step in the requested direction is tried
// before considering a fresh descend, so that an interior node's remaining
// siblings are walked before any of them is revisited; a descend is only
// attempted again once siblings in that direction are exhausted. Without
// this ordering, the documented reset of visit_num to 0 on a PREV-family
// ascend would cause the same child to be descended into twice in a row.
func (h *ExtentHandle) moveCompound(dir direction) (ExtentRecord, error) {
	cameFromAscend := false
	for {
		f := h.currentFrame()
		if f.isLeafLevel() {
			if rec, err := h.trySiblingStep(f, dir); err == nil {
				return rec, nil
			}
			if h.level == 0 {
				return ExtentRecord{}, noMoveError(dir)
			}
			if err := h.ascend(true); err != nil {
				return ExtentRecord{}, err
			}
			cameFromAscend = true
			continue
		}

		if cameFromAscend {
			if rec, err := h.trySiblingStep(f, dir); err == nil {
				return rec, nil
			}
			if h.level == 0 {
				return ExtentRecord{}, noMoveError(dir)
			}
			if err := h.ascend(true); err != nil {
				return ExtentRecord{}, err
			}
			continue
		}

		if f.visitNum == 0 {
			f.visitNum = 1
			if err := h.descend(dir == dirPrev); err != nil {
				return ExtentRecord{}, err
			}
			return h.decodeCurrent()
		}
		if rec, err := h.trySiblingStep(f, dir); err == nil {
			return rec, nil
		}
		if h.level == 0 {
			return ExtentRecord{}, noMoveError(dir)
		}
		if err := h.ascend(true); err != nil {
			return ExtentRecord{}, err
		}
		cameFromAscend = true
	}
}

func noMoveError(dir direction) error {
	if dir == dirNext {
		return newExtentError(ErrExtentNoNext, "")
	}
	return newExtentError(ErrExtentNoPrev, "")
}

// trySiblingStep attempts one NEXT_SIB/PREV_SIB on f; on success it clears
// f's visit_num (the newly current record has not itself been descended
// into) and returns the decoded record. It never returns NO_CURRENT_NODE:
// a frame with no current record simply has no sibling to step to.
func (h *ExtentHandle) trySiblingStep(f *pathFrame, dir direction) (ExtentRecord, error) {
	if !f.hasCurrent() {
		return ExtentRecord{}, newExtentError(ErrExtentNoNext, "no current record")
	}
	if dir == dirNext {
		if f.curr+1 >= int(f.entries) {
			return ExtentRecord{}, newExtentError(ErrExtentNoNext, "")
		}
		f.curr++
		f.left--
	} else {
		if f.curr == 0 {
			return ExtentRecord{}, newExtentError(ErrExtentNoPrev, "")
		}
		f.curr--
		f.left++
	}
	f.visitNum = 0
	return h.decodeCurrent()
}

// moveToLeaf implements NEXT_LEAF/PREV_LEAF: repeat the compound move until
// the cursor reaches max depth.
func (h *ExtentHandle) moveToLeaf(dir direction) (ExtentRecord, error) {
	var rec ExtentRecord
	var err error
	for {
		rec, err = h.moveCompound(dir)
		if err != nil {
			return ExtentRecord{}, err
		}
		if h.level == h.maxDepth {
			return rec, nil
		}
	}
}

// doLastLeaf descends to the last record at every level until max depth,
// per the literal algorithm of §4.3: repeatedly either DOWN (when no
// sibling remains to jump to) or LAST_SIB, until at max depth with no
// siblings remaining.
func (h *ExtentHandle) doLastLeaf() (ExtentRecord, error) {
	for {
		f := h.currentFrame()
		atMax := h.level == h.maxDepth
		noSibRemains := !f.hasCurrent() || f.curr == int(f.entries)-1
		if atMax && noSibRemains {
			return h.decodeCurrent()
		}
		if !atMax && noSibRemains {
			if err := h.descend(false); err != nil {
				return ExtentRecord{}, err
			}
			continue
		}
		if _, err := h.doLastSib(); err != nil {
			return ExtentRecord{}, err
		}
	}
}

// decodeCurrent decodes the record at the cursor's present position,
// applying the leaf-vs-interior and SECOND_VISIT rules of §4.3.
func (h *ExtentHandle) decodeCurrent() (ExtentRecord, error) {
	f := h.currentFrame()
	if !f.hasCurrent() {
		return ExtentRecord{}, newExtentError(ErrNoCurrentNode, "")
	}
	secondVisit := f.visitNum != 0
	if f.isLeafLevel() {
		leaf := decodeLeafRecord(f.recordBytes(f.curr))
		return decodeLeafAsRecord(leaf, secondVisit), nil
	}
	idx := decodeIndexRecord(f.recordBytes(f.curr))
	return decodeIndexAsRecord(idx, f.nextSiblingBlock(), f.endBlk, secondVisit), nil
}
