package wtverify

// File format constants for the descriptor page and page header layout.
const (
	// BTreeMagic identifies a valid descriptor page.
	BTreeMagic uint32 = 0x120897

	// BTreeMajorVersion and BTreeMinorVersion are the format versions this
	// verifier understands. A descriptor whose major or minor version
	// differs from these is rejected.
	BTreeMajorVersion uint16 = 3
	BTreeMinorVersion uint16 = 0

	// DescriptorAddr is the fragment address of the descriptor page.
	DescriptorAddr uint32 = 0

	// DescriptorSize is the fixed size, in bytes, of the descriptor page.
	DescriptorSize uint32 = 512

	// DefaultAllocSize is the default minimum file allocation unit used by
	// the wtverify command's -alloc-size flag; the descriptor page does not
	// carry an allocation size.
	DefaultAllocSize uint32 = 512
)

// pageHeaderSize is the fixed common prefix shared by every page kind:
// type(1) level(1) start_recno(8) lsn[2](8) unused[2](4) u.datalen(4).
const pageHeaderSize = 26

// itemHeaderSize is the fixed prefix of a variable-length item: one
// little-endian uint32 with the type in its low 8 bits and the payload
// length in its high 24 bits.
const itemHeaderSize = 4

// ovflRefSize is sizeof(OVFL): addr(4) size(4) datalen(4).
const ovflRefSize = 12

// offRecordSize is sizeof(OFF): addr(4) size(4) records(8).
const offRecordSize = 16

// rccEntryHeaderSize is sizeof(uint16 count) prefixing each COL_RCC entry.
const rccEntryHeaderSize = 2

// leafLevel and noLevel are the two sentinel tree levels; any internal
// page's level is greater than leafLevel.
const (
	leafLevel uint8 = 1
	noLevel   uint8 = 0
)

// descFlagRepeat is the DESC_REPEAT bit in the descriptor's flags field; it
// is only legal when FixedLen > 0.
const descFlagRepeat uint32 = 0x01
