package ext4

// Goto positions the cursor on the leaf extent containing logical block
// blk. At each interior level it walks NEXT_SIB while the next index
// record's block is still <= blk (it looks at the next record before
// stepping, so it never overshoots), then descends; at the leaf it checks
// containment directly.
//
// If blk falls in a hole before the leaf extent the scan stopped on, Goto
// issues a PREV_SIB whose result is discarded before reporting
// EXTENT_NOT_FOUND; this leaves the cursor on the preceding extent of the
// same leaf (or in place when there is none), a documented side effect
// callers must not rely on being absent.
func (h *ExtentHandle) Goto(blk uint64) error {
	if _, err := h.doRoot(); err != nil {
		return err
	}

	for h.level < h.maxDepth {
		f := h.currentFrame()
		for {
			next := f.nextSiblingBlock()
			if next == nil || uint64(*next) > blk {
				break
			}
			if _, err := h.doSiblingStep(dirNext); err != nil {
				break
			}
		}
		if err := h.descend(false); err != nil {
			return err
		}
	}

	for {
		f := h.currentFrame()
		rec, err := h.decodeCurrent()
		if err != nil {
			return err
		}
		if blk >= rec.LBlk && blk < rec.LBlk+rec.Len {
			return nil
		}
		if blk < rec.LBlk {
			// A hole below the current extent. The ignored PREV_SIB here
			// is deliberate: it mirrors a quirk of the traversal this
			// engine is modeled on and is preserved rather than cleaned up.
			_, _ = h.doSiblingStep(dirPrev)
			return newExtentError(ErrExtentNotFound, "logical block falls in a hole")
		}
		if f.curr+1 >= int(f.entries) {
			return newExtentError(ErrExtentNotFound, "logical block beyond last extent")
		}
		if _, err := h.doSiblingStep(dirNext); err != nil {
			return newExtentError(ErrExtentNotFound, "")
		}
	}
}
