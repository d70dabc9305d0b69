package ext4

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

type gdtChecksumType uint8

const (
	groupDescriptorSize32     = 32
	groupDescriptorSize64     = 64
	gdtChecksumNone           gdtChecksumType = 0
	gdtChecksumGdt            gdtChecksumType = 1
	gdtChecksumMetadata       gdtChecksumType = 2
	blockGroupFlagInodesUninit      uint16 = 0x1
	blockGroupFlagBlockBitmapUninit uint16 = 0x2
	blockGroupFlagInodeTableZeroed  uint16 = 0x4
)

// groupDescriptor holds the location and usage counters for a single block group.
type groupDescriptor struct {
	number              uint64
	is64bit             bool
	blockBitmapLocation uint64
	inodeBitmapLocation uint64
	inodeTableLocation  uint64
	freeBlocks          uint32
	freeInodes          uint32
	usedDirectories     uint32
	unusedInodes        uint32
	inodesUninitialized      bool
	blockBitmapUninitialized bool
	inodeTableZeroed         bool
	blockBitmapChecksum uint32
	inodeBitmapChecksum uint32
}

// groupDescriptors is the full group descriptor table for a filesystem.
type groupDescriptors struct {
	descriptors []groupDescriptor
}

func (gds *groupDescriptors) equal(a *groupDescriptors) bool {
	if gds == nil || a == nil {
		return gds == a
	}
	if len(gds.descriptors) != len(a.descriptors) {
		return false
	}
	for i := range gds.descriptors {
		if gds.descriptors[i] != a.descriptors[i] {
			return false
		}
	}
	return true
}

func groupDescriptorsFromBytes(b []byte, groupDescSize uint16, checksumSeed uint32, checksumType gdtChecksumType) (*groupDescriptors, error) {
	is64bit := groupDescSize >= groupDescriptorSize64
	gdSize := int(groupDescSize)
	if gdSize == 0 {
		gdSize = groupDescriptorSize32
		if is64bit {
			gdSize = groupDescriptorSize64
		}
	}
	if len(b)%gdSize != 0 {
		return nil, fmt.Errorf("group descriptor table of %d bytes is not a multiple of descriptor size %d", len(b), gdSize)
	}
	count := len(b) / gdSize
	descriptors := make([]groupDescriptor, 0, count)
	for i := 0; i < count; i++ {
		start, end := i*gdSize, (i+1)*gdSize
		gd, err := groupDescriptorFromBytes(b[start:end], is64bit, uint64(i), checksumSeed, checksumType)
		if err != nil {
			return nil, fmt.Errorf("group descriptor %d: %v", i, err)
		}
		descriptors = append(descriptors, *gd)
	}
	return &groupDescriptors{descriptors: descriptors}, nil
}

func (gds *groupDescriptors) toBytes(checksumType gdtChecksumType, checksumSeed uint32) []byte {
	var out []byte
	for i := range gds.descriptors {
		out = append(out, gds.descriptors[i].toBytes(checksumType, checksumSeed)...)
	}
	return out
}

func groupDescriptorFromBytes(b []byte, is64bit bool, number uint64, checksumSeed uint32, checksumType gdtChecksumType) (*groupDescriptor, error) {
	gd := &groupDescriptor{number: number, is64bit: is64bit}

	blockBitmapLo := binary.LittleEndian.Uint32(b[0x0:0x4])
	inodeBitmapLo := binary.LittleEndian.Uint32(b[0x4:0x8])
	inodeTableLo := binary.LittleEndian.Uint32(b[0x8:0xc])
	freeBlocksLo := uint32(binary.LittleEndian.Uint16(b[0xc:0xe]))
	freeInodesLo := uint32(binary.LittleEndian.Uint16(b[0xe:0x10]))
	usedDirsLo := uint32(binary.LittleEndian.Uint16(b[0x10:0x12]))
	flags := binary.LittleEndian.Uint16(b[0x12:0x14])
	blockBitmapChecksumLo := uint32(binary.LittleEndian.Uint16(b[0x18:0x1a]))
	inodeBitmapChecksumLo := uint32(binary.LittleEndian.Uint16(b[0x1a:0x1c]))
	unusedInodesLo := uint32(binary.LittleEndian.Uint16(b[0x1c:0x1e]))

	var blockBitmapHi, inodeBitmapHi, inodeTableHi, freeBlocksHi, freeInodesHi, usedDirsHi, unusedInodesHi, blockBitmapChecksumHi, inodeBitmapChecksumHi uint32
	if is64bit && len(b) >= groupDescriptorSize64 {
		blockBitmapHi = binary.LittleEndian.Uint32(b[0x20:0x24])
		inodeBitmapHi = binary.LittleEndian.Uint32(b[0x24:0x28])
		inodeTableHi = binary.LittleEndian.Uint32(b[0x28:0x2c])
		freeBlocksHi = uint32(binary.LittleEndian.Uint16(b[0x2c:0x2e]))
		freeInodesHi = uint32(binary.LittleEndian.Uint16(b[0x2e:0x30]))
		usedDirsHi = uint32(binary.LittleEndian.Uint16(b[0x30:0x32]))
		unusedInodesHi = uint32(binary.LittleEndian.Uint16(b[0x32:0x34]))
		blockBitmapChecksumHi = uint32(binary.LittleEndian.Uint16(b[0x38:0x3a]))
		inodeBitmapChecksumHi = uint32(binary.LittleEndian.Uint16(b[0x3a:0x3c]))
	}

	gd.blockBitmapLocation = uint64(blockBitmapHi)<<32 | uint64(blockBitmapLo)
	gd.inodeBitmapLocation = uint64(inodeBitmapHi)<<32 | uint64(inodeBitmapLo)
	gd.inodeTableLocation = uint64(inodeTableHi)<<32 | uint64(inodeTableLo)
	gd.freeBlocks = freeBlocksHi<<16 | freeBlocksLo
	gd.freeInodes = freeInodesHi<<16 | freeInodesLo
	gd.usedDirectories = usedDirsHi<<16 | usedDirsLo
	gd.unusedInodes = unusedInodesHi<<16 | unusedInodesLo
	gd.blockBitmapChecksum = blockBitmapChecksumHi<<16 | blockBitmapChecksumLo
	gd.inodeBitmapChecksum = inodeBitmapChecksumHi<<16 | inodeBitmapChecksumLo
	gd.inodesUninitialized = flags&blockGroupFlagInodesUninit != 0
	gd.blockBitmapUninitialized = flags&blockGroupFlagBlockBitmapUninit != 0
	gd.inodeTableZeroed = flags&blockGroupFlagInodeTableZeroed != 0

	if checksumType != gdtChecksumNone {
		stored := binary.LittleEndian.Uint16(b[0x1e:0x20])
		actual := groupDescriptorChecksum(b[0x0:0x1e], checksumSeed, number, checksumType)
		if stored != actual {
			return nil, fmt.Errorf("checksum mismatch: stored %x, calculated %x", stored, actual)
		}
	}

	return gd, nil
}

func (gd *groupDescriptor) toBytes(checksumType gdtChecksumType, checksumSeed uint32) []byte {
	size := groupDescriptorSize32
	if gd.is64bit {
		size = groupDescriptorSize64
	}
	b := make([]byte, size)

	binary.LittleEndian.PutUint32(b[0x0:0x4], uint32(gd.blockBitmapLocation))
	binary.LittleEndian.PutUint32(b[0x4:0x8], uint32(gd.inodeBitmapLocation))
	binary.LittleEndian.PutUint32(b[0x8:0xc], uint32(gd.inodeTableLocation))
	binary.LittleEndian.PutUint16(b[0xc:0xe], uint16(gd.freeBlocks))
	binary.LittleEndian.PutUint16(b[0xe:0x10], uint16(gd.freeInodes))
	binary.LittleEndian.PutUint16(b[0x10:0x12], uint16(gd.usedDirectories))

	var flags uint16
	if gd.inodesUninitialized {
		flags |= blockGroupFlagInodesUninit
	}
	if gd.blockBitmapUninitialized {
		flags |= blockGroupFlagBlockBitmapUninit
	}
	if gd.inodeTableZeroed {
		flags |= blockGroupFlagInodeTableZeroed
	}
	binary.LittleEndian.PutUint16(b[0x12:0x14], flags)

	binary.LittleEndian.PutUint16(b[0x18:0x1a], uint16(gd.blockBitmapChecksum))
	binary.LittleEndian.PutUint16(b[0x1a:0x1c], uint16(gd.inodeBitmapChecksum))
	binary.LittleEndian.PutUint16(b[0x1c:0x1e], uint16(gd.unusedInodes))

	if gd.is64bit {
		binary.LittleEndian.PutUint32(b[0x20:0x24], uint32(gd.blockBitmapLocation>>32))
		binary.LittleEndian.PutUint32(b[0x24:0x28], uint32(gd.inodeBitmapLocation>>32))
		binary.LittleEndian.PutUint32(b[0x28:0x2c], uint32(gd.inodeTableLocation>>32))
		binary.LittleEndian.PutUint16(b[0x2c:0x2e], uint16(gd.freeBlocks>>16))
		binary.LittleEndian.PutUint16(b[0x2e:0x30], uint16(gd.freeInodes>>16))
		binary.LittleEndian.PutUint16(b[0x30:0x32], uint16(gd.usedDirectories>>16))
		binary.LittleEndian.PutUint16(b[0x32:0x34], uint16(gd.unusedInodes>>16))
		binary.LittleEndian.PutUint16(b[0x38:0x3a], uint16(gd.blockBitmapChecksum>>16))
		binary.LittleEndian.PutUint16(b[0x3a:0x3c], uint16(gd.inodeBitmapChecksum>>16))
	}

	checksum := groupDescriptorChecksum(b[0x0:0x1e], checksumSeed, gd.number, checksumType)
	binary.LittleEndian.PutUint16(b[0x1e:0x20], checksum)

	return b
}

// groupDescriptorChecksum computes the crc16/crc32c protecting one group
// descriptor, folded into the low 16 bits when the filesystem uses the
// metadata_csum scheme.
func groupDescriptorChecksum(b []byte, checksumSeed uint32, number uint64, checksumType gdtChecksumType) uint16 {
	if checksumType == gdtChecksumNone {
		return 0
	}

	seedBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(seedBytes, checksumSeed)
	groupBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupBytes, uint32(number))

	switch checksumType {
	case gdtChecksumMetadata:
		input := append(append(append([]byte{}, seedBytes...), groupBytes...), b...)
		return uint16(crc32.Checksum(input, castagnoliTable) & 0xffff)
	case gdtChecksumGdt:
		input := append(append(append([]byte{}, seedBytes...), groupBytes...), b...)
		return crc16(input)
	default:
		return 0
	}
}

// crc16 implements the CRC-16/ANSI variant used by the legacy (pre
// metadata_csum) group descriptor checksum.
func crc16(b []byte) uint16 {
	var crc uint16 = 0xffff
	for _, c := range b {
		crc ^= uint16(c)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xa001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
