package ext4

// Global geometric limits implied by the on-disk record encoding of §3,
// independent of any particular tree.
const (
	extentMaxLogicalBlock      uint64 = 1<<32 - 1
	extentMaxPhysicalBlock     uint64 = 1<<48 - 1
	extentMaxInitializedLen    uint64 = 1 << 15
	extentMaxUninitializedLen  uint64 = 1<<15 - 1
)

// ExtentGeometry reports the cursor's position within its current frame
// alongside the tree's depth and the format's global limits.
type ExtentGeometry struct {
	EntryIndex int
	Entries    uint16
	MaxEntries uint16
	// BytesRemaining is how many bytes of new records the current frame
	// has room for before Insert would fail with CANT_INSERT_EXTENT.
	BytesRemaining uint32

	Depth    int
	MaxDepth int

	MaxLogicalBlock     uint64
	MaxPhysicalBlock    uint64
	MaxInitializedLen   uint64
	MaxUninitializedLen uint64
}

// GetInfo reports the geometry of the cursor's current frame.
func (h *ExtentHandle) GetInfo() ExtentGeometry {
	f := h.currentFrame()
	return ExtentGeometry{
		EntryIndex:     f.curr,
		Entries:        f.entries,
		MaxEntries:     f.maxEntries,
		BytesRemaining: uint32(f.maxEntries-f.entries) * uint32(extentTreeEntryLength),

		Depth:    h.level,
		MaxDepth: h.maxDepth,

		MaxLogicalBlock:     extentMaxLogicalBlock,
		MaxPhysicalBlock:    extentMaxPhysicalBlock,
		MaxInitializedLen:   extentMaxInitializedLen,
		MaxUninitializedLen: extentMaxUninitializedLen,
	}
}
