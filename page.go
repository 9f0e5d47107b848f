package wtverify

import (
	"encoding/binary"
	"fmt"
)

// pageKind identifies the on-disk type of a page. It is a named type
// rather than raw integer constants with fallthrough dispatch; any
// on-disk byte outside the known set maps to pageInvalid.
type pageKind uint8

const (
	pageInvalid pageKind = iota
	pageDescript
	pageColFix
	pageColInt
	pageColRCC
	pageColVar
	pageDupInt
	pageDupLeaf
	pageOvfl
	pageRowInt
	pageRowLeaf
)

func (k pageKind) String() string {
	switch k {
	case pageDescript:
		return "DESCRIPT"
	case pageColFix:
		return "COL_FIX"
	case pageColInt:
		return "COL_INT"
	case pageColRCC:
		return "COL_RCC"
	case pageColVar:
		return "COL_VAR"
	case pageDupInt:
		return "DUP_INT"
	case pageDupLeaf:
		return "DUP_LEAF"
	case pageOvfl:
		return "OVFL"
	case pageRowInt:
		return "ROW_INT"
	case pageRowLeaf:
		return "ROW_LEAF"
	default:
		return "INVALID"
	}
}

// isLeafShape reports whether pages of this kind carry level == leafLevel.
func (k pageKind) isLeafShape() bool {
	switch k {
	case pageColFix, pageColRCC, pageColVar, pageDupLeaf, pageOvfl, pageRowLeaf:
		return true
	default:
		return false
	}
}

// isInternalShape reports whether pages of this kind carry level > leafLevel.
func (k pageKind) isInternalShape() bool {
	switch k {
	case pageColInt, pageDupInt, pageRowInt:
		return true
	default:
		return false
	}
}

// pageHeader is the common prefix shared by every page kind. It mirrors
// the reference engine's pageHeader convention: a plain struct
// describing a fixed on-disk layout plus free accessor functions over
// the raw byte slice, rather than a generic decoder.
type pageHeader struct {
	Type        pageKind
	Level       uint8
	StartRecno  uint64
	LSN         [2]uint32
	Unused      [2]uint16
	DataLen     uint32 // valid only for OVFL and DESCRIPT pages
}

// rawPageKind maps the on-disk byte to a pageKind, returning pageInvalid
// for any value outside the known set.
func rawPageKind(b byte) pageKind {
	switch b {
	case 1:
		return pageDescript
	case 2:
		return pageColFix
	case 3:
		return pageColInt
	case 4:
		return pageColRCC
	case 5:
		return pageColVar
	case 6:
		return pageDupInt
	case 7:
		return pageDupLeaf
	case 8:
		return pageOvfl
	case 9:
		return pageRowInt
	case 10:
		return pageRowLeaf
	default:
		return pageInvalid
	}
}

// parsePageHeader reads the fixed-layout header out of a page's raw bytes.
// It does not validate the header's contents; that is the Page Validator's
// job (validator.go).
func parsePageHeader(buf []byte) (pageHeader, error) {
	if len(buf) < pageHeaderSize {
		return pageHeader{}, fmt.Errorf("page buffer of %d bytes is shorter than the %d-byte header", len(buf), pageHeaderSize)
	}
	var h pageHeader
	h.Type = rawPageKind(buf[0])
	h.Level = buf[1]
	h.StartRecno = binary.LittleEndian.Uint64(buf[2:10])
	h.LSN[0] = binary.LittleEndian.Uint32(buf[10:14])
	h.LSN[1] = binary.LittleEndian.Uint32(buf[14:18])
	h.Unused[0] = binary.LittleEndian.Uint16(buf[18:20])
	h.Unused[1] = binary.LittleEndian.Uint16(buf[20:22])
	h.DataLen = binary.LittleEndian.Uint32(buf[22:26])
	return h, nil
}

// Page is a loaded page together with its parsed header and the body
// bytes that follow the header. Pages are produced and owned by a
// PageSource implementation; callers must call the release function
// returned alongside the page when done (see PageSource.PageIn).
type Page struct {
	Addr   uint32
	Size   uint32
	Header pageHeader
	Body   []byte // bytes following the common header
}

// NewPage parses raw page bytes into a Page. PageSource implementations
// (see the cache package) use this to build the Page they hand back from
// PageIn.
func NewPage(addr, size uint32, raw []byte) (*Page, error) {
	hdr, err := parsePageHeader(raw)
	if err != nil {
		return nil, err
	}
	return &Page{
		Addr:   addr,
		Size:   size,
		Header: hdr,
		Body:   raw[pageHeaderSize:],
	}, nil
}
