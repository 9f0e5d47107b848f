package wtverify

import "encoding/binary"

// itemKind tags the variable-length records found on item-bearing pages.
type itemKind uint8

const (
	itemInvalid itemKind = iota
	itemKey
	itemKeyOvfl
	itemKeyDup
	itemKeyDupOvfl
	itemData
	itemDataOvfl
	itemDataDup
	itemDataDupOvfl
	itemDel
	itemOff
)

func (k itemKind) String() string {
	switch k {
	case itemKey:
		return "KEY"
	case itemKeyOvfl:
		return "KEY_OVFL"
	case itemKeyDup:
		return "KEY_DUP"
	case itemKeyDupOvfl:
		return "KEY_DUP_OVFL"
	case itemData:
		return "DATA"
	case itemDataOvfl:
		return "DATA_OVFL"
	case itemDataDup:
		return "DATA_DUP"
	case itemDataDupOvfl:
		return "DATA_DUP_OVFL"
	case itemDel:
		return "DEL"
	case itemOff:
		return "OFF"
	default:
		return "INVALID"
	}
}

// isKeyKind reports whether the item participates in the primary-key
// sort-order check (itemKey/itemKeyOvfl) or the duplicate-key check
// (itemKeyDup/itemKeyDupOvfl).
func (k itemKind) isKeyKind() bool {
	switch k {
	case itemKey, itemKeyOvfl, itemKeyDup, itemKeyDupOvfl:
		return true
	default:
		return false
	}
}

// isDupDataKind reports whether the item is a duplicate-data payload
// participating in the duplicate-data sort-order check.
func (k itemKind) isDupDataKind() bool {
	switch k {
	case itemDataDup, itemDataDupOvfl:
		return true
	default:
		return false
	}
}

// isOverflowKind reports whether the item's payload is sizeof(OVFL)
// rather than raw bytes.
func (k itemKind) isOverflowKind() bool {
	switch k {
	case itemKeyOvfl, itemKeyDupOvfl, itemDataOvfl, itemDataDupOvfl:
		return true
	default:
		return false
	}
}

func rawItemKind(b byte) itemKind {
	switch b {
	case 1:
		return itemKey
	case 2:
		return itemKeyOvfl
	case 3:
		return itemKeyDup
	case 4:
		return itemKeyDupOvfl
	case 5:
		return itemData
	case 6:
		return itemDataOvfl
	case 7:
		return itemDataDup
	case 8:
		return itemDataDupOvfl
	case 9:
		return itemDel
	case 10:
		return itemOff
	default:
		return itemInvalid
	}
}

// itemKindTable enforces invariant 4: item type must be legal for the
// enclosing page kind. DEL is deliberately restricted to pageColVar only,
// per the Open Question in SPEC_FULL.md section 9 — preserved as a
// recorded decision, not silently broadened to COL_FIX/COL_RCC.
var itemKindTable = map[itemKind][]pageKind{
	itemKey:         {pageRowInt, pageRowLeaf},
	itemKeyOvfl:     {pageRowInt, pageRowLeaf},
	itemKeyDup:      {pageDupInt},
	itemKeyDupOvfl:  {pageDupInt},
	itemData:        {pageColVar, pageRowLeaf},
	itemDataOvfl:    {pageColVar, pageRowLeaf},
	itemDataDup:     {pageDupLeaf, pageRowLeaf},
	itemDataDupOvfl: {pageDupLeaf, pageRowLeaf},
	itemDel:         {pageColVar},
	itemOff:         {pageDupInt, pageRowInt, pageRowLeaf},
}

func itemAllowedOnPage(ik itemKind, pk pageKind) bool {
	for _, allowed := range itemKindTable[ik] {
		if allowed == pk {
			return true
		}
	}
	return false
}

// item is one variable-length record on an item-bearing page.
type item struct {
	Kind    itemKind
	Length  uint32 // payload length, excluding the 4-byte item header
	Payload []byte
	Offset  uint32 // byte offset of this item within the page body
}

// readItem parses one item at the given offset within buf (a page body),
// returning the item and the offset of the next item. It reports false
// when the header or the declared payload runs past the end of buf; the
// caller (validator.go) turns that into its own diagnostic.
func readItem(buf []byte, offset uint32) (item, uint32, bool) {
	if uint64(offset)+itemHeaderSize > uint64(len(buf)) {
		return item{}, 0, false
	}
	hdr := binary.LittleEndian.Uint32(buf[offset : offset+4])
	kind := rawItemKind(byte(hdr & 0xFF))
	length := hdr >> 8
	payloadStart := offset + itemHeaderSize
	payloadEnd := uint64(payloadStart) + uint64(length)
	if payloadEnd > uint64(len(buf)) {
		return item{Kind: kind, Length: length, Offset: offset}, uint32(payloadEnd), false
	}
	return item{
		Kind:    kind,
		Length:  length,
		Payload: buf[payloadStart:payloadEnd],
		Offset:  offset,
	}, uint32(payloadEnd), true
}

// ovflRef is a reference to an overflow page: {addr, size, datalen}.
type ovflRef struct {
	Addr    uint32
	Size    uint32
	DataLen uint32
}

func parseOvflRef(payload []byte) (ovflRef, bool) {
	if len(payload) != ovflRefSize {
		return ovflRef{}, false
	}
	return ovflRef{
		Addr:    binary.LittleEndian.Uint32(payload[0:4]),
		Size:    binary.LittleEndian.Uint32(payload[4:8]),
		DataLen: binary.LittleEndian.Uint32(payload[8:12]),
	}, true
}

// offRecord is a reference to a child subtree or an off-page duplicate
// tree: {addr, size, records}.
type offRecord struct {
	Addr    uint32
	Size    uint32
	Records uint64
}

func parseOffRecord(payload []byte) (offRecord, bool) {
	if len(payload) != offRecordSize {
		return offRecord{}, false
	}
	return offRecord{
		Addr:    binary.LittleEndian.Uint32(payload[0:4]),
		Size:    binary.LittleEndian.Uint32(payload[4:8]),
		Records: binary.LittleEndian.Uint64(payload[8:16]),
	}, true
}
