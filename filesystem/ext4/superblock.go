package ext4

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

const (
	// SuperblockSize is the fixed on-disk size of the ext4 superblock
	SuperblockSize = 1024
	// superblockSignature is the magic value at offset 0x38
	superblockSignature uint16 = 0xef53
	crc32cChecksumType  byte   = 1
)

type filesystemState uint16
type errorBehaviour uint16
type osFlag uint32
type hashAlgorithm byte

const (
	fsStateCleanlyUnmounted filesystemState = 0x0001
	fsStateErrors           filesystemState = 0x0002
	fsStateOrphansRecovered filesystemState = 0x0004

	errorsContinue        errorBehaviour = 1
	errorsRemountReadOnly errorBehaviour = 2
	errorsPanic           errorBehaviour = 3

	osLinux   osFlag = 0
	osHurd    osFlag = 1
	osMasix   osFlag = 2
	osFreeBSD osFlag = 3
	osLites   osFlag = 4

	hashLegacy          hashAlgorithm = 0x0
	hashHalfMD4         hashAlgorithm = 0x1
	hashTea             hashAlgorithm = 0x2
	hashLegacyUnsigned  hashAlgorithm = 0x3
	hashHalfMD4Unsigned hashAlgorithm = 0x4
	hashTeaUnsigned     hashAlgorithm = 0x5
)

// journalBackup mirrors the journal inode's i_block array and size, kept in
// the superblock so fsck can find the journal even with a corrupt inode table.
type journalBackup struct {
	iBlocks [15]uint32
	iSize   uint64
}

// superblock holds the decoded ext4 superblock. Only the fields the rest of
// this package actually reads or writes are maintained precisely; the
// remainder round-trip through fromBytes/toBytes unchanged.
type superblock struct {
	inodeCount     uint32
	blockCount     uint64
	reservedBlocks uint64
	freeBlocks     uint64
	freeInodes     uint32
	firstDataBlock uint32
	blockSize      uint32
	clusterSize    uint32
	blocksPerGroup uint32
	inodesPerGroup uint32

	mountTime     time.Time
	writeTime     time.Time
	mountCount    uint16
	mountsToFsck  uint16

	filesystemState filesystemState
	errorBehaviour  errorBehaviour
	minorRevision   uint16
	lastCheck       time.Time
	checkInterval   uint32
	creatorOS       osFlag
	revisionLevel   uint32

	reservedBlocksDefaultUID uint16
	reservedBlocksDefaultGID uint16

	firstNonReservedInode uint32
	inodeSize             uint16
	blockGroupOfSuperblock uint16
	features              featureFlags

	uuid                 *uuid.UUID
	volumeLabel          string
	lastMountedDirectory string

	algorithmUsageBitmap         uint32
	preallocationBlocks          byte
	preallocationDirectoryBlocks byte
	reservedGDTBlocks            uint16

	journalSuperblockUUID *uuid.UUID
	journalInode          uint32
	journalDeviceNumber   uint32
	orphanedInodesStart   uint32

	hashTreeSeed [4]uint32
	hashVersion  hashAlgorithm

	groupDescriptorSize uint16
	defaultMountOptions uint32
	firstMetablockGroup uint32
	mkfsTime            time.Time
	journalBackup       *journalBackup

	inodeMinExtraSize    uint16
	inodeReserveExtraSize uint16
	miscFlags            uint32

	raidStride                   uint16
	multiMountPreventionInterval uint16
	multiMountProtectionBlock    uint64
	raidStripeWidth              uint32
	logGroupsPerFlex             uint8
	checksumType                 byte
	totalKBWritten               uint64

	errorCount         uint32
	errorFirstTime     time.Time
	errorFirstInode    uint32
	errorFirstBlock    uint64
	errorFirstFunction string
	errorFirstLine     uint32
	errorLastTime      time.Time
	errorLastInode     uint32
	errorLastBlock     uint64
	errorLastFunction  string
	errorLastLine      uint32

	mountOptions string

	userQuotaInode              uint32
	groupQuotaInode             uint32
	overheadBlocks              uint32
	backupSuperblockBlockGroups [2]uint32
	encryptionAlgorithms        [4]byte
	encryptionSalt              [16]byte
	lostFoundInode              uint32
	projectQuotaInode           uint32
	checksumSeed                uint32
}

func (sb *superblock) equal(a *superblock) bool {
	if sb == nil || a == nil {
		return sb == a
	}
	return *sb == *a
}

// blockGroupCount returns the number of block groups covering the filesystem.
func (sb *superblock) blockGroupCount() uint64 {
	if sb.blocksPerGroup == 0 {
		return 0
	}
	count := sb.blockCount / uint64(sb.blocksPerGroup)
	if sb.blockCount%uint64(sb.blocksPerGroup) != 0 {
		count++
	}
	return count
}

// gdtChecksumType reports which checksum, if any, protects each group
// descriptor, derived from the feature bits rather than stored directly.
func (sb *superblock) gdtChecksumType() gdtChecksumType {
	switch {
	case sb.features.metadataChecksums:
		return gdtChecksumMetadata
	case sb.features.gdtChecksum:
		return gdtChecksumGdt
	default:
		return gdtChecksumNone
	}
}

func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != SuperblockSize {
		return nil, fmt.Errorf("cannot read superblock from %d bytes instead of expected %d", len(b), SuperblockSize)
	}

	signature := binary.LittleEndian.Uint16(b[0x38:0x3a])
	if signature != superblockSignature {
		return nil, fmt.Errorf("invalid superblock signature %x, expected %x", signature, superblockSignature)
	}

	sb := &superblock{}
	compat := binary.LittleEndian.Uint32(b[0x5c:0x60])
	incompat := binary.LittleEndian.Uint32(b[0x60:0x64])
	roCompat := binary.LittleEndian.Uint32(b[0x64:0x68])
	sb.features = parseFeatureFlags(compat, incompat, roCompat)

	sb.inodeCount = binary.LittleEndian.Uint32(b[0x0:0x4])

	blockCountLo := binary.LittleEndian.Uint32(b[0x4:0x8])
	reservedLo := binary.LittleEndian.Uint32(b[0x8:0xc])
	freeLo := binary.LittleEndian.Uint32(b[0xc:0x10])
	var blockCountHi, reservedHi, freeHi uint32
	if sb.features.fs64Bit {
		blockCountHi = binary.LittleEndian.Uint32(b[0x150:0x154])
		reservedHi = binary.LittleEndian.Uint32(b[0x154:0x158])
		freeHi = binary.LittleEndian.Uint32(b[0x158:0x15c])
	}
	sb.blockCount = uint64(blockCountHi)<<32 | uint64(blockCountLo)
	sb.reservedBlocks = uint64(reservedHi)<<32 | uint64(reservedLo)
	sb.freeBlocks = uint64(freeHi)<<32 | uint64(freeLo)

	sb.freeInodes = binary.LittleEndian.Uint32(b[0x10:0x14])
	sb.firstDataBlock = binary.LittleEndian.Uint32(b[0x14:0x18])
	sb.blockSize = 1 << (10 + binary.LittleEndian.Uint32(b[0x18:0x1c]))
	sb.clusterSize = 1 << binary.LittleEndian.Uint32(b[0x1c:0x20])
	sb.blocksPerGroup = binary.LittleEndian.Uint32(b[0x20:0x24])
	sb.inodesPerGroup = binary.LittleEndian.Uint32(b[0x28:0x2c])
	sb.mountTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x2c:0x30])), 0).UTC()
	sb.writeTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x30:0x34])), 0).UTC()
	sb.mountCount = binary.LittleEndian.Uint16(b[0x34:0x36])
	sb.mountsToFsck = binary.LittleEndian.Uint16(b[0x36:0x38])

	sb.filesystemState = filesystemState(binary.LittleEndian.Uint16(b[0x3a:0x3c]))
	sb.errorBehaviour = errorBehaviour(binary.LittleEndian.Uint16(b[0x3c:0x3e]))
	sb.minorRevision = binary.LittleEndian.Uint16(b[0x3e:0x40])
	sb.lastCheck = time.Unix(int64(binary.LittleEndian.Uint32(b[0x40:0x44])), 0).UTC()
	sb.checkInterval = binary.LittleEndian.Uint32(b[0x44:0x48])
	sb.creatorOS = osFlag(binary.LittleEndian.Uint32(b[0x48:0x4c]))
	sb.revisionLevel = binary.LittleEndian.Uint32(b[0x4c:0x50])
	sb.reservedBlocksDefaultUID = binary.LittleEndian.Uint16(b[0x50:0x52])
	sb.reservedBlocksDefaultGID = binary.LittleEndian.Uint16(b[0x52:0x54])

	sb.firstNonReservedInode = binary.LittleEndian.Uint32(b[0x54:0x58])
	sb.inodeSize = binary.LittleEndian.Uint16(b[0x58:0x5a])
	sb.blockGroupOfSuperblock = binary.LittleEndian.Uint16(b[0x5a:0x5c])

	vol, err := uuid.FromBytes(b[0x68:0x78])
	if err != nil {
		return nil, fmt.Errorf("invalid volume uuid: %v", err)
	}
	sb.uuid = &vol
	sb.volumeLabel = nullTerminatedString(b[0x78:0x88])
	sb.lastMountedDirectory = nullTerminatedString(b[0x88:0xc8])
	sb.algorithmUsageBitmap = binary.LittleEndian.Uint32(b[0xc8:0xcc])

	sb.preallocationBlocks = b[0xcc]
	sb.preallocationDirectoryBlocks = b[0xcd]
	sb.reservedGDTBlocks = binary.LittleEndian.Uint16(b[0xce:0xd0])

	jUUID, err := uuid.FromBytes(b[0xd0:0xe0])
	if err != nil {
		return nil, fmt.Errorf("invalid journal uuid: %v", err)
	}
	sb.journalSuperblockUUID = &jUUID
	sb.journalInode = binary.LittleEndian.Uint32(b[0xe0:0xe4])
	sb.journalDeviceNumber = binary.LittleEndian.Uint32(b[0xe4:0xe8])
	sb.orphanedInodesStart = binary.LittleEndian.Uint32(b[0xe8:0xec])

	for i := 0; i < 4; i++ {
		sb.hashTreeSeed[i] = binary.LittleEndian.Uint32(b[0xec+4*i : 0xf0+4*i])
	}
	sb.hashVersion = hashAlgorithm(b[0xfc])
	sb.groupDescriptorSize = binary.LittleEndian.Uint16(b[0xfe:0x100])

	sb.defaultMountOptions = binary.LittleEndian.Uint32(b[0x100:0x104])
	sb.firstMetablockGroup = binary.LittleEndian.Uint32(b[0x104:0x108])
	sb.mkfsTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x108:0x10c])), 0).UTC()

	var jb journalBackup
	for i := 0; i < 15; i++ {
		jb.iBlocks[i] = binary.LittleEndian.Uint32(b[0x10c+4*i : 0x110+4*i])
	}
	jb.iSize = uint64(binary.LittleEndian.Uint32(b[0x10c+4*15:0x110+4*15])) |
		uint64(binary.LittleEndian.Uint32(b[0x10c+4*16:0x110+4*16]))<<32
	sb.journalBackup = &jb

	sb.inodeMinExtraSize = binary.LittleEndian.Uint16(b[0x15c:0x15e])
	sb.inodeReserveExtraSize = binary.LittleEndian.Uint16(b[0x15e:0x160])
	sb.miscFlags = binary.LittleEndian.Uint32(b[0x160:0x164])
	sb.raidStride = binary.LittleEndian.Uint16(b[0x164:0x166])
	sb.multiMountPreventionInterval = binary.LittleEndian.Uint16(b[0x166:0x168])
	sb.multiMountProtectionBlock = binary.LittleEndian.Uint64(b[0x168:0x170])
	sb.raidStripeWidth = binary.LittleEndian.Uint32(b[0x170:0x174])
	sb.logGroupsPerFlex = b[0x174]
	sb.checksumType = b[0x175]
	sb.totalKBWritten = binary.LittleEndian.Uint64(b[0x178:0x180])

	sb.errorCount = binary.LittleEndian.Uint32(b[0x194:0x198])
	sb.errorFirstTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x198:0x19c])), 0).UTC()
	sb.errorFirstInode = binary.LittleEndian.Uint32(b[0x19c:0x1a0])
	sb.errorFirstBlock = binary.LittleEndian.Uint64(b[0x1a0:0x1a8])
	sb.errorFirstFunction = nullTerminatedString(b[0x1a8:0x1c8])
	sb.errorFirstLine = binary.LittleEndian.Uint32(b[0x1c8:0x1cc])
	sb.errorLastTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x1cc:0x1d0])), 0).UTC()
	sb.errorLastInode = binary.LittleEndian.Uint32(b[0x1d0:0x1d4])
	sb.errorLastLine = binary.LittleEndian.Uint32(b[0x1d4:0x1d8])
	sb.errorLastBlock = binary.LittleEndian.Uint64(b[0x1d8:0x1e0])
	sb.errorLastFunction = nullTerminatedString(b[0x1e0:0x200])

	sb.mountOptions = nullTerminatedString(b[0x200:0x240])
	sb.userQuotaInode = binary.LittleEndian.Uint32(b[0x240:0x244])
	sb.groupQuotaInode = binary.LittleEndian.Uint32(b[0x244:0x248])
	sb.overheadBlocks = binary.LittleEndian.Uint32(b[0x248:0x24c])
	sb.backupSuperblockBlockGroups[0] = binary.LittleEndian.Uint32(b[0x24c:0x250])
	sb.backupSuperblockBlockGroups[1] = binary.LittleEndian.Uint32(b[0x250:0x254])
	copy(sb.encryptionAlgorithms[:], b[0x254:0x258])
	copy(sb.encryptionSalt[:], b[0x258:0x268])
	sb.lostFoundInode = binary.LittleEndian.Uint32(b[0x268:0x26c])
	sb.projectQuotaInode = binary.LittleEndian.Uint32(b[0x26c:0x270])
	sb.checksumSeed = binary.LittleEndian.Uint32(b[0x270:0x274])

	if sb.features.metadataChecksums {
		stored := binary.LittleEndian.Uint32(b[0x3fc:0x400])
		actual := crc32.Checksum(b[0:0x3fc], castagnoliTable)
		if actual != stored {
			return nil, fmt.Errorf("invalid superblock checksum, got %x expected %x", actual, stored)
		}
	}

	return sb, nil
}

func (sb *superblock) toBytes() ([]byte, error) {
	b := make([]byte, SuperblockSize)

	binary.LittleEndian.PutUint16(b[0x38:0x3a], superblockSignature)
	compat, incompat, roCompat := sb.features.toInts()
	binary.LittleEndian.PutUint32(b[0x5c:0x60], compat)
	binary.LittleEndian.PutUint32(b[0x60:0x64], incompat)
	binary.LittleEndian.PutUint32(b[0x64:0x68], roCompat)

	binary.LittleEndian.PutUint32(b[0x0:0x4], sb.inodeCount)
	binary.LittleEndian.PutUint32(b[0x4:0x8], uint32(sb.blockCount))
	binary.LittleEndian.PutUint32(b[0x8:0xc], uint32(sb.reservedBlocks))
	binary.LittleEndian.PutUint32(b[0xc:0x10], uint32(sb.freeBlocks))
	if sb.features.fs64Bit {
		binary.LittleEndian.PutUint32(b[0x150:0x154], uint32(sb.blockCount>>32))
		binary.LittleEndian.PutUint32(b[0x154:0x158], uint32(sb.reservedBlocks>>32))
		binary.LittleEndian.PutUint32(b[0x158:0x15c], uint32(sb.freeBlocks>>32))
	}

	binary.LittleEndian.PutUint32(b[0x10:0x14], sb.freeInodes)
	binary.LittleEndian.PutUint32(b[0x14:0x18], sb.firstDataBlock)
	binary.LittleEndian.PutUint32(b[0x18:0x1c], log2Uint32(sb.blockSize)-10)
	binary.LittleEndian.PutUint32(b[0x1c:0x20], log2Uint32(sb.clusterSize))
	binary.LittleEndian.PutUint32(b[0x20:0x24], sb.blocksPerGroup)
	binary.LittleEndian.PutUint32(b[0x28:0x2c], sb.inodesPerGroup)
	binary.LittleEndian.PutUint32(b[0x2c:0x30], uint32(sb.mountTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x30:0x34], uint32(sb.writeTime.Unix()))
	binary.LittleEndian.PutUint16(b[0x34:0x36], sb.mountCount)
	binary.LittleEndian.PutUint16(b[0x36:0x38], sb.mountsToFsck)

	binary.LittleEndian.PutUint16(b[0x3a:0x3c], uint16(sb.filesystemState))
	binary.LittleEndian.PutUint16(b[0x3c:0x3e], uint16(sb.errorBehaviour))
	binary.LittleEndian.PutUint16(b[0x3e:0x40], sb.minorRevision)
	binary.LittleEndian.PutUint32(b[0x40:0x44], uint32(sb.lastCheck.Unix()))
	binary.LittleEndian.PutUint32(b[0x44:0x48], sb.checkInterval)
	binary.LittleEndian.PutUint32(b[0x48:0x4c], uint32(sb.creatorOS))
	binary.LittleEndian.PutUint32(b[0x4c:0x50], sb.revisionLevel)
	binary.LittleEndian.PutUint16(b[0x50:0x52], sb.reservedBlocksDefaultUID)
	binary.LittleEndian.PutUint16(b[0x52:0x54], sb.reservedBlocksDefaultGID)

	binary.LittleEndian.PutUint32(b[0x54:0x58], sb.firstNonReservedInode)
	binary.LittleEndian.PutUint16(b[0x58:0x5a], sb.inodeSize)
	binary.LittleEndian.PutUint16(b[0x5a:0x5c], sb.blockGroupOfSuperblock)

	if sb.uuid != nil {
		volBytes, err := sb.uuid.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("invalid volume uuid: %v", err)
		}
		copy(b[0x68:0x78], volBytes)
	}
	copy(b[0x78:0x88], []byte(sb.volumeLabel))
	copy(b[0x88:0xc8], []byte(sb.lastMountedDirectory))
	binary.LittleEndian.PutUint32(b[0xc8:0xcc], sb.algorithmUsageBitmap)

	b[0xcc] = sb.preallocationBlocks
	b[0xcd] = sb.preallocationDirectoryBlocks
	binary.LittleEndian.PutUint16(b[0xce:0xd0], sb.reservedGDTBlocks)

	if sb.journalSuperblockUUID != nil {
		jBytes, err := sb.journalSuperblockUUID.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("invalid journal uuid: %v", err)
		}
		copy(b[0xd0:0xe0], jBytes)
	}
	binary.LittleEndian.PutUint32(b[0xe0:0xe4], sb.journalInode)
	binary.LittleEndian.PutUint32(b[0xe4:0xe8], sb.journalDeviceNumber)
	binary.LittleEndian.PutUint32(b[0xe8:0xec], sb.orphanedInodesStart)

	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(b[0xec+4*i:0xf0+4*i], sb.hashTreeSeed[i])
	}
	b[0xfc] = byte(sb.hashVersion)
	binary.LittleEndian.PutUint16(b[0xfe:0x100], sb.groupDescriptorSize)

	binary.LittleEndian.PutUint32(b[0x100:0x104], sb.defaultMountOptions)
	binary.LittleEndian.PutUint32(b[0x104:0x108], sb.firstMetablockGroup)
	binary.LittleEndian.PutUint32(b[0x108:0x10c], uint32(sb.mkfsTime.Unix()))

	if sb.journalBackup != nil {
		for i := 0; i < 15; i++ {
			binary.LittleEndian.PutUint32(b[0x10c+4*i:0x110+4*i], sb.journalBackup.iBlocks[i])
		}
		binary.LittleEndian.PutUint32(b[0x10c+4*15:0x110+4*15], uint32(sb.journalBackup.iSize))
		binary.LittleEndian.PutUint32(b[0x10c+4*16:0x110+4*16], uint32(sb.journalBackup.iSize>>32))
	}

	binary.LittleEndian.PutUint16(b[0x15c:0x15e], sb.inodeMinExtraSize)
	binary.LittleEndian.PutUint16(b[0x15e:0x160], sb.inodeReserveExtraSize)
	binary.LittleEndian.PutUint32(b[0x160:0x164], sb.miscFlags)
	binary.LittleEndian.PutUint16(b[0x164:0x166], sb.raidStride)
	binary.LittleEndian.PutUint16(b[0x166:0x168], sb.multiMountPreventionInterval)
	binary.LittleEndian.PutUint64(b[0x168:0x170], sb.multiMountProtectionBlock)
	binary.LittleEndian.PutUint32(b[0x170:0x174], sb.raidStripeWidth)
	b[0x174] = sb.logGroupsPerFlex
	b[0x175] = sb.checksumType
	binary.LittleEndian.PutUint64(b[0x178:0x180], sb.totalKBWritten)

	binary.LittleEndian.PutUint32(b[0x194:0x198], sb.errorCount)
	binary.LittleEndian.PutUint32(b[0x198:0x19c], uint32(sb.errorFirstTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x19c:0x1a0], sb.errorFirstInode)
	binary.LittleEndian.PutUint64(b[0x1a0:0x1a8], sb.errorFirstBlock)
	copy(b[0x1a8:0x1c8], []byte(sb.errorFirstFunction))
	binary.LittleEndian.PutUint32(b[0x1c8:0x1cc], sb.errorFirstLine)
	binary.LittleEndian.PutUint32(b[0x1cc:0x1d0], uint32(sb.errorLastTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x1d0:0x1d4], sb.errorLastInode)
	binary.LittleEndian.PutUint32(b[0x1d4:0x1d8], sb.errorLastLine)
	binary.LittleEndian.PutUint64(b[0x1d8:0x1e0], sb.errorLastBlock)
	copy(b[0x1e0:0x200], []byte(sb.errorLastFunction))

	copy(b[0x200:0x240], []byte(sb.mountOptions))
	binary.LittleEndian.PutUint32(b[0x240:0x244], sb.userQuotaInode)
	binary.LittleEndian.PutUint32(b[0x244:0x248], sb.groupQuotaInode)
	binary.LittleEndian.PutUint32(b[0x248:0x24c], sb.overheadBlocks)
	binary.LittleEndian.PutUint32(b[0x24c:0x250], sb.backupSuperblockBlockGroups[0])
	binary.LittleEndian.PutUint32(b[0x250:0x254], sb.backupSuperblockBlockGroups[1])
	copy(b[0x254:0x258], sb.encryptionAlgorithms[:])
	copy(b[0x258:0x268], sb.encryptionSalt[:])
	binary.LittleEndian.PutUint32(b[0x268:0x26c], sb.lostFoundInode)
	binary.LittleEndian.PutUint32(b[0x26c:0x270], sb.projectQuotaInode)
	binary.LittleEndian.PutUint32(b[0x270:0x274], sb.checksumSeed)

	if sb.features.metadataChecksums {
		checksum := crc32.Checksum(b[0:0x3fc], castagnoliTable)
		binary.LittleEndian.PutUint32(b[0x3fc:0x400], checksum)
	}

	return b, nil
}

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func log2Uint32(v uint32) uint32 {
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func nullTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
