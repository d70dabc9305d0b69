package ext4

// feature is a single compat/incompat/ro-compat bit as stored in the superblock.
type feature uint32

const (
	compatFeatureDirectoryPreAllocate          feature = 0x1
	compatFeatureImagicInodes                  feature = 0x2
	compatFeatureHasJournal                    feature = 0x4
	compatFeatureExtendedAttributes            feature = 0x8
	compatFeatureReservedGDTBlocksForExpansion feature = 0x10
	compatFeatureDirectoryIndices              feature = 0x20
	compatFeatureLazyBlockGroup                feature = 0x40
	compatFeatureExcludeInode                  feature = 0x80
	compatFeatureExcludeBitmap                 feature = 0x100
	compatFeatureSparseSuperBlockV2            feature = 0x200

	incompatFeatureCompression                      feature = 0x1
	incompatFeatureDirectoryEntriesRecordFileType   feature = 0x2
	incompatFeatureRecoveryNeeded                   feature = 0x4
	incompatFeatureSeparateJournalDevice            feature = 0x8
	incompatFeatureMetaBlockGroups                  feature = 0x10
	incompatFeatureExtents                          feature = 0x40
	incompatFeature64Bit                            feature = 0x80
	incompatFeatureMultipleMountProtection          feature = 0x100
	incompatFeatureFlexBlockGroups                  feature = 0x200
	incompatFeatureExtendedAttributeInodes          feature = 0x400
	incompatFeatureDataInDirectoryEntries           feature = 0x1000
	incompatFeatureMetadataChecksumSeedInSuperblock feature = 0x2000
	incompatFeatureLargeDirectory                   feature = 0x4000
	incompatFeatureDataInInode                      feature = 0x8000
	incompatFeatureEncryptInodes                    feature = 0x10000

	roCompatFeatureSparseSuperblock       feature = 0x1
	roCompatFeatureLargeFile              feature = 0x2
	roCompatFeatureBtreeDirectory         feature = 0x4
	roCompatFeatureHugeFile               feature = 0x8
	roCompatFeatureGDTChecksum            feature = 0x10
	roCompatFeatureLargeSubdirectoryCount feature = 0x20
	roCompatFeatureLargeInodes            feature = 0x40
	roCompatFeatureSnapshot               feature = 0x80
	roCompatFeatureQuota                  feature = 0x100
	roCompatFeatureBigalloc               feature = 0x200
	roCompatFeatureMetadataChecksums      feature = 0x400
	roCompatFeatureReplicas               feature = 0x800
	roCompatFeatureReadOnly               feature = 0x1000
	roCompatFeatureProjectQuotas          feature = 0x2000
)

// featureFlags is the decoded, human-readable view of the three feature
// bitmasks in the superblock. The extent engine reads none of these
// directly (it checks each inode's own extents flag when a handle is
// opened, and rejects inodes without it); they travel with the superblock
// because the wider filesystem code depends on them.
type featureFlags struct {
	directoryPreAllocate          bool
	imagicInodes                  bool
	hasJournal                    bool
	extendedAttributes             bool
	reservedGDTBlocksForExpansion bool
	directoryIndices               bool
	lazyBlockGroup                 bool

	compression                      bool
	directoryEntriesRecordFileType   bool
	recoveryNeeded                   bool
	separateJournalDevice            bool
	metaBlockGroups                  bool
	extents                          bool
	fs64Bit                          bool
	multipleMountProtection          bool
	flexBlockGroups                  bool
	extendedAttributeInodes          bool
	dataInDirectoryEntries           bool
	metadataChecksumSeedInSuperblock bool
	largeDirectory                   bool
	dataInInode                      bool
	encryptInodes                    bool

	sparseSuperblock       bool
	largeFile              bool
	btreeDirectory         bool
	hugeFile               bool
	gdtChecksum            bool
	largeSubdirectoryCount bool
	largeInodes            bool
	snapshot               bool
	quota                  bool
	bigalloc               bool
	metadataChecksums      bool
	replicas               bool
	readOnly               bool
	projectQuotas          bool
}

func parseFeatureFlags(compat, incompat, roCompat uint32) featureFlags {
	has := func(flags uint32, f feature) bool { return flags&uint32(f) == uint32(f) }
	return featureFlags{
		directoryPreAllocate:          has(compat, compatFeatureDirectoryPreAllocate),
		imagicInodes:                  has(compat, compatFeatureImagicInodes),
		hasJournal:                    has(compat, compatFeatureHasJournal),
		extendedAttributes:            has(compat, compatFeatureExtendedAttributes),
		reservedGDTBlocksForExpansion: has(compat, compatFeatureReservedGDTBlocksForExpansion),
		directoryIndices:              has(compat, compatFeatureDirectoryIndices),
		lazyBlockGroup:                has(compat, compatFeatureLazyBlockGroup),

		compression:                      has(incompat, incompatFeatureCompression),
		directoryEntriesRecordFileType:   has(incompat, incompatFeatureDirectoryEntriesRecordFileType),
		recoveryNeeded:                   has(incompat, incompatFeatureRecoveryNeeded),
		separateJournalDevice:            has(incompat, incompatFeatureSeparateJournalDevice),
		metaBlockGroups:                  has(incompat, incompatFeatureMetaBlockGroups),
		extents:                          has(incompat, incompatFeatureExtents),
		fs64Bit:                          has(incompat, incompatFeature64Bit),
		multipleMountProtection:          has(incompat, incompatFeatureMultipleMountProtection),
		flexBlockGroups:                  has(incompat, incompatFeatureFlexBlockGroups),
		extendedAttributeInodes:          has(incompat, incompatFeatureExtendedAttributeInodes),
		dataInDirectoryEntries:           has(incompat, incompatFeatureDataInDirectoryEntries),
		metadataChecksumSeedInSuperblock: has(incompat, incompatFeatureMetadataChecksumSeedInSuperblock),
		largeDirectory:                   has(incompat, incompatFeatureLargeDirectory),
		dataInInode:                      has(incompat, incompatFeatureDataInInode),
		encryptInodes:                    has(incompat, incompatFeatureEncryptInodes),

		sparseSuperblock:       has(roCompat, roCompatFeatureSparseSuperblock),
		largeFile:              has(roCompat, roCompatFeatureLargeFile),
		btreeDirectory:         has(roCompat, roCompatFeatureBtreeDirectory),
		hugeFile:               has(roCompat, roCompatFeatureHugeFile),
		gdtChecksum:            has(roCompat, roCompatFeatureGDTChecksum),
		largeSubdirectoryCount: has(roCompat, roCompatFeatureLargeSubdirectoryCount),
		largeInodes:            has(roCompat, roCompatFeatureLargeInodes),
		snapshot:               has(roCompat, roCompatFeatureSnapshot),
		quota:                  has(roCompat, roCompatFeatureQuota),
		bigalloc:               has(roCompat, roCompatFeatureBigalloc),
		metadataChecksums:      has(roCompat, roCompatFeatureMetadataChecksums),
		replicas:               has(roCompat, roCompatFeatureReplicas),
		readOnly:               has(roCompat, roCompatFeatureReadOnly),
		projectQuotas:          has(roCompat, roCompatFeatureProjectQuotas),
	}
}

func (f featureFlags) toInts() (compat, incompat, roCompat uint32) {
	set := func(flags *uint32, cond bool, val feature) {
		if cond {
			*flags |= uint32(val)
		}
	}
	set(&compat, f.directoryPreAllocate, compatFeatureDirectoryPreAllocate)
	set(&compat, f.imagicInodes, compatFeatureImagicInodes)
	set(&compat, f.hasJournal, compatFeatureHasJournal)
	set(&compat, f.extendedAttributes, compatFeatureExtendedAttributes)
	set(&compat, f.reservedGDTBlocksForExpansion, compatFeatureReservedGDTBlocksForExpansion)
	set(&compat, f.directoryIndices, compatFeatureDirectoryIndices)
	set(&compat, f.lazyBlockGroup, compatFeatureLazyBlockGroup)

	set(&incompat, f.compression, incompatFeatureCompression)
	set(&incompat, f.directoryEntriesRecordFileType, incompatFeatureDirectoryEntriesRecordFileType)
	set(&incompat, f.recoveryNeeded, incompatFeatureRecoveryNeeded)
	set(&incompat, f.separateJournalDevice, incompatFeatureSeparateJournalDevice)
	set(&incompat, f.metaBlockGroups, incompatFeatureMetaBlockGroups)
	set(&incompat, f.extents, incompatFeatureExtents)
	set(&incompat, f.fs64Bit, incompatFeature64Bit)
	set(&incompat, f.multipleMountProtection, incompatFeatureMultipleMountProtection)
	set(&incompat, f.flexBlockGroups, incompatFeatureFlexBlockGroups)
	set(&incompat, f.extendedAttributeInodes, incompatFeatureExtendedAttributeInodes)
	set(&incompat, f.dataInDirectoryEntries, incompatFeatureDataInDirectoryEntries)
	set(&incompat, f.metadataChecksumSeedInSuperblock, incompatFeatureMetadataChecksumSeedInSuperblock)
	set(&incompat, f.largeDirectory, incompatFeatureLargeDirectory)
	set(&incompat, f.dataInInode, incompatFeatureDataInInode)
	set(&incompat, f.encryptInodes, incompatFeatureEncryptInodes)

	set(&roCompat, f.sparseSuperblock, roCompatFeatureSparseSuperblock)
	set(&roCompat, f.largeFile, roCompatFeatureLargeFile)
	set(&roCompat, f.btreeDirectory, roCompatFeatureBtreeDirectory)
	set(&roCompat, f.hugeFile, roCompatFeatureHugeFile)
	set(&roCompat, f.gdtChecksum, roCompatFeatureGDTChecksum)
	set(&roCompat, f.largeSubdirectoryCount, roCompatFeatureLargeSubdirectoryCount)
	set(&roCompat, f.largeInodes, roCompatFeatureLargeInodes)
	set(&roCompat, f.snapshot, roCompatFeatureSnapshot)
	set(&roCompat, f.quota, roCompatFeatureQuota)
	set(&roCompat, f.bigalloc, roCompatFeatureBigalloc)
	set(&roCompat, f.metadataChecksums, roCompatFeatureMetadataChecksums)
	set(&roCompat, f.replicas, roCompatFeatureReplicas)
	set(&roCompat, f.readOnly, roCompatFeatureReadOnly)
	set(&roCompat, f.projectQuotas, roCompatFeatureProjectQuotas)
	return
}
