package pe

const (
	ImageDOSSignature      = 0x5A4D     // MZ
	ImageNTHeaderSignature = 0x00004550 // PE\0\0
)

const (
	ImageFileMachineI386 = 0x014c
	ImageNTOptionalHdr32 = 0x10b
)

// IMAGE_FILE characteristics
const (
	ImageFileRelocsStripped    = 0x0001
	ImageFileExecutableImage   = 0x0002
	ImageFile32BitMachine      = 0x0100
	ImageFileLargeAddressAware = 0x0020
)

// IMAGE_SUBSYSTEM constants
const (
	ImageSubsystemWindowsGUI = 2
	ImageSubsystemWindowsCUI = 3
)

// IMAGE_DIRECTORY_ENTRY constants
const (
	ImageDirectoryEntryExport        = 0
	ImageDirectoryEntryImport        = 1
	ImageDirectoryEntryResource      = 2
	ImageDirectoryEntryException     = 3
	ImageDirectoryEntrySecurity      = 4
	ImageDirectoryEntryBaseReLoc     = 5
	ImageDirectoryEntryDebug         = 6
	ImageDirectoryEntryArchitecture  = 7
	ImageDirectoryEntryGlobalPtr     = 8
	ImageDirectoryEntryTls           = 9
	ImageDirectoryEntryLoadConfig    = 10
	ImageDirectoryEntryBoundImport   = 11
	ImageDirectoryEntryIat           = 12
	ImageDirectoryEntryDelayImport   = 13
	ImageDirectoryEntryComDescriptor = 14

	ImageNumberOfDirectoryEntries = 16
)

const (
	ImageScnCntCode              = 0x00000020
	ImageScnCntInitializedData   = 0x00000040
	ImageScnCntUninitializedData = 0x00000080
	ImageScnMemExecute           = 0x20000000
	ImageScnMemRead              = 0x40000000
	ImageScnMemWrite             = 0x80000000
)

const (
	FileAlignment    = 0x200
	SectionAlignment = 0x1000

	// HeaderAlignment is the boundary the NT headers must start on.
	HeaderAlignment = 8
)

const (
	DOSHeaderSize          = 64
	FileHeaderSize         = 20
	OptionalHeader32Size   = 224
	NtHeaders32Size        = 4 + FileHeaderSize + OptionalHeader32Size
	SectionHeaderSize      = 40
	ImportDescriptorSize   = 20
	DataDirectorySize      = 8
	thunkSize32            = 4
	hintSize               = 2
	maxSectionNameLength   = 8
	offsetDOSHeaderLfanew  = 60
	offsetOptionalHeader   = 4 + FileHeaderSize
	offsetDataDirectories  = 96
	offsetOptionalChecksum = 64
)

// Defaults used by NewBuilder.
const (
	DefaultImageBase         = 0x00400000
	DefaultStackReserve      = 0x80000
	DefaultStackCommit       = 0x11000
	DefaultHeapReserve       = 0x100000
	DefaultHeapCommit        = 0x1000
	DefaultEntryPoint        = 0x1000
	DefaultMajorLinker       = 14
	DefaultMinorLinker       = 37
	DefaultMajorOSVersion    = 6
	DefaultMajorImageVersion = 6
	DefaultMajorSubsystem    = 6
)

const (
	SectionText   = ".text"
	SectionData   = ".data"
	SectionImport = ".idata"
)
