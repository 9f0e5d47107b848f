package wtverify

import "encoding/binary"

// Params holds the global parameters the descriptor page is checked
// against. Per SPEC_FULL.md section 9 ("Global parameters"), the caller
// is responsible for seeding these — normally by reading them from the
// descriptor page of an already-open database — before calling Verify;
// verifying against a zero-value Params fails the
// intlmin/intlmax/leafmin/leafmax check for any descriptor that declares
// non-zero sizes.
type Params struct {
	IntlMin   uint32
	IntlMax   uint32
	LeafMin   uint32
	LeafMax   uint32
	FixedLen  uint32
	AllocSize uint32

	// RootAddr and RootSize locate the tree's root page. They are not
	// carried on the descriptor page itself (the descriptor only holds
	// global parameters); the caller reads them the same place it would
	// read any other open-database metadata before calling Verify.
	RootAddr uint32
	RootSize uint32

	// Collation and DupCollation select the primary and duplicate
	// comparison functions (btree_compare / btree_compare_dup). A nil
	// Collation defaults to bytes.Compare.
	Collation    CmpFunc
	DupCollation CmpFunc

	// Codec is the Huffman decompression collaborator; nil means this
	// format revision has compression unconfigured.
	Codec Codec

	// Target names the file being verified, passed through to
	// ProgressFunc. Purely cosmetic.
	Target string

	// Sink receives every diagnostic as it is produced, in addition to
	// its accumulation in Report.Diagnostics (api_db_errx in
	// SPEC_FULL.md section 6.4). Nil means collect-only.
	Sink DiagSink
}

// descriptor is the parsed payload of the page at DescriptorAddr.
type descriptor struct {
	Magic        uint32
	MajorVersion uint16
	MinorVersion uint16
	IntlMin      uint32
	IntlMax      uint32
	LeafMin      uint32
	LeafMax      uint32
	RecnoOffset  uint64
	FixedLen     uint32
	Flags        uint32
}

const (
	descMagicOff  = 0
	descMajorOff  = 4
	descMinorOff  = 6
	descIntlMin   = 8
	descIntlMax   = 12
	descLeafMin   = 16
	descLeafMax   = 20
	descRecnoOff  = 24
	descFixedLen  = 32
	descFlagsOff  = 36
	descUnused1Off = 40
	descUnused1Len = 64
	descUnused2Off = descUnused1Off + descUnused1Len
)

// descMask is the set of flag bits the descriptor's Flags field may
// legally carry; any other bit set is a format violation.
const descMask uint32 = descFlagRepeat

func parseDescriptor(body []byte) (descriptor, error) {
	if len(body) < int(DescriptorSize)-pageHeaderSize {
		return descriptor{}, newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page body is shorter than expected")
	}
	return descriptor{
		Magic:        binary.LittleEndian.Uint32(body[descMagicOff : descMagicOff+4]),
		MajorVersion: binary.LittleEndian.Uint16(body[descMajorOff : descMajorOff+2]),
		MinorVersion: binary.LittleEndian.Uint16(body[descMinorOff : descMinorOff+2]),
		IntlMin:      binary.LittleEndian.Uint32(body[descIntlMin : descIntlMin+4]),
		IntlMax:      binary.LittleEndian.Uint32(body[descIntlMax : descIntlMax+4]),
		LeafMin:      binary.LittleEndian.Uint32(body[descLeafMin : descLeafMin+4]),
		LeafMax:      binary.LittleEndian.Uint32(body[descLeafMax : descLeafMax+4]),
		RecnoOffset:  binary.LittleEndian.Uint64(body[descRecnoOff : descRecnoOff+8]),
		FixedLen:     binary.LittleEndian.Uint32(body[descFixedLen : descFixedLen+4]),
		Flags:        binary.LittleEndian.Uint32(body[descFlagsOff : descFlagsOff+4]),
	}, nil
}

// validateDescriptor implements SPEC_FULL.md section 4.2.f.
func validateDescriptor(body []byte, params Params) error {
	d, err := parseDescriptor(body)
	if err != nil {
		return err
	}
	if d.Magic != BTreeMagic {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page has bad magic number 0x%x", d.Magic)
	}
	if d.MajorVersion != BTreeMajorVersion {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page major version %d does not match expected version %d", d.MajorVersion, BTreeMajorVersion)
	}
	if d.MinorVersion != BTreeMinorVersion {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page minor version %d does not match expected version %d", d.MinorVersion, BTreeMinorVersion)
	}
	if d.IntlMin != params.IntlMin || d.IntlMax != params.IntlMax ||
		d.LeafMin != params.LeafMin || d.LeafMax != params.LeafMax {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page size parameters do not match the database's configured parameters")
	}
	if d.RecnoOffset != 0 {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page recno offset %d is not zero", d.RecnoOffset)
	}
	if d.Flags&^descMask != 0 {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page flags 0x%x contain unrecognized bits", d.Flags)
	}
	if d.Flags&descFlagRepeat != 0 && d.FixedLen == 0 {
		return newVerifyError(FormatViolation, DescriptorAddr, -1,
			"descriptor page has DESC_REPEAT set but fixed_len is zero")
	}
	if descUnused2Off+descUnused1Len <= len(body) {
		if !allZero(body[descUnused1Off : descUnused1Off+descUnused1Len]) {
			return newVerifyError(FormatViolation, DescriptorAddr, -1,
				"descriptor page unused1 region is not zero-filled")
		}
		if !allZero(body[descUnused2Off:]) {
			return newVerifyError(FormatViolation, DescriptorAddr, -1,
				"descriptor page unused2 region is not zero-filled")
		}
	}
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
