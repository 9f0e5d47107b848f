package wtverify

import (
	"context"
)

// registerFragments records a page's fragment range in the Fragment Map,
// per SPEC_FULL.md section 4.1's add operation. frags may be nil when the
// caller is validating a page outside of a full tree walk (e.g. a unit
// test exercising the Page Validator in isolation).
func registerFragments(frags *fragmentMap, allocSize uint32, p *Page) error {
	if frags == nil {
		return nil
	}
	count := fragCount(p.Size, allocSize)
	conflict, ok := frags.add(p.Addr, count)
	if !ok {
		if conflict >= frags.frags {
			return newVerifyError(ExtentViolation, p.Addr, -1,
				"page at addr %d extends past the end of the file", p.Addr)
		}
		return newVerifyError(ExtentViolation, p.Addr, -1,
			"page fragment at addr %d was already verified", conflict)
	}
	return nil
}

func fragCount(size, allocSize uint32) uint32 {
	n := size / allocSize
	if size%allocSize != 0 {
		n++
	}
	return n
}

// validatePage implements the Page Validator (SPEC_FULL.md section 4.2):
// the header checks common to every page kind, followed by kind-specific
// body validation. frags may be nil (see registerFragments).
func validatePage(ctx context.Context, src PageSource, proc ItemProcessor, params Params, frags *fragmentMap, p *Page, onOff onOffFunc) error {
	if err := registerFragments(frags, params.AllocSize, p); err != nil {
		return err
	}

	h := p.Header
	if h.LSN[0] != 0 || h.LSN[1] != 0 {
		return newVerifyError(FormatViolation, p.Addr, -1, "page at addr %d has a non-zero LSN", p.Addr)
	}
	if h.Unused[0] != 0 || h.Unused[1] != 0 {
		return newVerifyError(FormatViolation, p.Addr, -1, "page at addr %d has non-zero reserved header bytes", p.Addr)
	}
	if h.Type == pageInvalid {
		return newVerifyError(FormatViolation, p.Addr, -1, "page at addr %d has an unrecognized page type", p.Addr)
	}

	switch {
	case h.Type == pageDescript:
		if h.Level != noLevel {
			return newVerifyError(FormatViolation, p.Addr, -1, "descriptor page at addr %d has a non-zero level", p.Addr)
		}
	case h.Type.isLeafShape():
		if h.Level != leafLevel {
			return newVerifyError(FormatViolation, p.Addr, -1, "leaf page at addr %d has level %d, expected %d", p.Addr, h.Level, leafLevel)
		}
	case h.Type.isInternalShape():
		if h.Level <= leafLevel {
			return newVerifyError(FormatViolation, p.Addr, -1, "internal page at addr %d has level %d, expected greater than %d", p.Addr, h.Level, leafLevel)
		}
	}

	switch h.Type {
	case pageDescript:
		return validateDescriptor(p.Body, params)
	case pageColFix:
		return validateColFix(p, params)
	case pageColRCC:
		return validateColRCC(p, params)
	case pageColInt:
		return validateColInt(p, frags, params)
	case pageOvfl:
		return validateOvfl(p)
	case pageColVar, pageDupInt, pageDupLeaf, pageRowInt, pageRowLeaf:
		_, err := walkItems(ctx, src, proc, params, frags, p, onOff)
		return err
	default:
		return newVerifyError(FormatViolation, p.Addr, -1, "page at addr %d has an unrecognized page type", p.Addr)
	}
}

// validateColFix implements SPEC_FULL.md section 4.2.c.
func validateColFix(p *Page, params Params) error {
	fixedLen := params.FixedLen
	if fixedLen == 0 {
		return newVerifyError(FormatViolation, p.Addr, -1, "COL_FIX page at addr %d requires a non-zero fixed_len", p.Addr)
	}
	body := p.Body
	n := len(body) / int(fixedLen)
	for i := 0; i < n; i++ {
		entry := body[i*int(fixedLen) : (i+1)*int(fixedLen)]
		if isDeletionMarker(entry[0]) && !allZero(entry[1:]) {
			return newVerifyError(FormatViolation, p.Addr, i,
				"deleted fixed-length entry %d on page at addr %d has non-nul bytes", i, p.Addr)
		}
	}
	return nil
}

// validateColRCC implements SPEC_FULL.md section 4.2.d.
func validateColRCC(p *Page, params Params) error {
	fixedLen := params.FixedLen
	if fixedLen == 0 {
		return newVerifyError(FormatViolation, p.Addr, -1, "COL_RCC page at addr %d requires a non-zero fixed_len", p.Addr)
	}
	entrySize := rccEntryHeaderSize + int(fixedLen)
	body := p.Body
	var prevPayload []byte
	var prevCount uint16
	for i := 0; (i+1)*entrySize <= len(body); i++ {
		off := i * entrySize
		count := uint16(body[off]) | uint16(body[off+1])<<8
		payload := body[off+rccEntryHeaderSize : off+entrySize]
		if count == 0 {
			return newVerifyError(FormatViolation, p.Addr, i,
				"RCC entry %d on page at addr %d has a zero repeat count", i, p.Addr)
		}
		if isDeletionMarker(payload[0]) && !allZero(payload[1:]) {
			return newVerifyError(FormatViolation, p.Addr, i,
				"deleted fixed-length entry %d on page at addr %d has non-nul bytes", i, p.Addr)
		}
		if prevPayload != nil && prevCount < 0xFFFF && bytesEqual(prevPayload, payload) {
			return newVerifyError(EncoderViolation, p.Addr, i,
				"fixed-length entries %d and %d on page at addr %d are identical and should have been compressed", i, i-1, p.Addr)
		}
		prevPayload, prevCount = payload, count
	}
	return nil
}

// columnLeafRecordCount computes a column leaf page's own record total:
// the number of COL_FIX entries, the sum of COL_RCC repeat counts, or the
// number of items on a COL_VAR page. It is the basis for the cross-page
// record-count check (spec.md section 3 invariant 9, section 4.4 step 4,
// section 8 property 5): the Tree Walker compares this against the
// records field the parent's OFF entry declared for this page. Callers
// only invoke it after validatePage has already accepted the page, so
// the body is known to be well-formed.
func columnLeafRecordCount(p *Page, params Params) uint64 {
	switch p.Header.Type {
	case pageColFix:
		if params.FixedLen == 0 {
			return 0
		}
		return uint64(len(p.Body) / int(params.FixedLen))
	case pageColRCC:
		entrySize := rccEntryHeaderSize + int(params.FixedLen)
		if entrySize <= rccEntryHeaderSize {
			return 0
		}
		body := p.Body
		var sum uint64
		for i := 0; (i+1)*entrySize <= len(body); i++ {
			off := i * entrySize
			sum += uint64(uint16(body[off]) | uint16(body[off+1])<<8)
		}
		return sum
	case pageColVar:
		body := p.Body
		var off uint32
		var n uint64
		for off < uint32(len(body)) {
			_, next, ok := readItem(body, off)
			if !ok {
				break
			}
			n++
			off = next
		}
		return n
	default:
		return 0
	}
}

// validateColInt implements SPEC_FULL.md section 4.2.b: every OFF entry
// must lie wholly on the page (guaranteed by walkOffRecords reading
// fixed-size runs) and its referenced fragment range must lie wholly
// within the file.
func validateColInt(p *Page, frags *fragmentMap, params Params) error {
	offs, err := walkOffRecords(p)
	if err != nil {
		return err
	}
	for i, off := range offs {
		if err := checkOffWithinFile(frags, params.AllocSize, p.Addr, i, off); err != nil {
			return err
		}
	}
	return nil
}

func checkOffWithinFile(frags *fragmentMap, allocSize uint32, pageAddr uint32, entryIdx int, off offRecord) error {
	if frags == nil {
		return nil
	}
	end := uint64(off.Addr) + uint64(fragCount(off.Size, allocSize))
	if end > uint64(frags.frags) {
		return newVerifyError(ExtentViolation, pageAddr, entryIdx,
			"off-page item %d on page at addr %d references non-existent file pages", entryIdx, pageAddr)
	}
	return nil
}

// validateOvfl implements SPEC_FULL.md section 4.2.e.
func validateOvfl(p *Page) error {
	datalen := p.Header.DataLen
	if datalen == 0 {
		return newVerifyError(FormatViolation, p.Addr, -1, "overflow page at addr %d has a zero-length payload", p.Addr)
	}
	if uint64(datalen) > uint64(len(p.Body)) {
		return newVerifyError(ExtentViolation, p.Addr, -1,
			"overflow page at addr %d declares datalen %d larger than the page", p.Addr, datalen)
	}
	if !allZero(p.Body[datalen:]) {
		return newVerifyError(FormatViolation, p.Addr, -1,
			"overflow page at addr %d has non-nul trailing bytes after datalen", p.Addr)
	}
	return nil
}

func isDeletionMarker(b byte) bool { return b == 0xFF }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// walkOffRecords reads every OFF-shaped entry on a COL_INT page body.
// COL_INT pages store OFF records directly (not wrapped in item
// headers), one per offRecordSize run.
func walkOffRecords(p *Page) ([]offRecord, error) {
	body := p.Body
	var out []offRecord
	for off := 0; off+offRecordSize <= len(body); off += offRecordSize {
		rec, ok := parseOffRecord(body[off : off+offRecordSize])
		if !ok {
			return nil, newVerifyError(FormatViolation, p.Addr, off/offRecordSize,
				"OFF entry %d on page at addr %d is malformed", off/offRecordSize, p.Addr)
		}
		out = append(out, rec)
	}
	return out, nil
}

// onOffFunc is invoked by walkItems for each OFF item found on a
// ROW_LEAF page, so the Tree Walker can recurse into the off-page
// duplicate subtree as if it were a tree root (SPEC_FULL.md section
// 4.4's "off-page duplicate subtrees" rule). It is nil when walkItems is
// called outside of a full tree walk.
type onOffFunc func(entryIdx int, off offRecord) error

// slot holds one item's materialized bytes plus however they should be
// released, used for the three-slot sort-order rotation described in
// SPEC_FULL.md section 10 ("three-slot rotation for sort checks"). Two
// independent slot pairs are tracked, one for key items and one for
// duplicate-data items, rather than a single generic three-element array:
// Go's GC plus explicit release functions make a literal index-swapped
// array unnecessary, while the ownership discipline — at most one
// pinned overflow page / scratch buffer per class, released before the
// next is acquired — is preserved exactly.
type slot struct {
	bytes   []byte
	release func()
	idx     int
	set     bool
}

func (s *slot) replace(bytes []byte, release func(), idx int) {
	if s.release != nil {
		s.release()
	}
	s.bytes, s.release, s.idx, s.set = bytes, release, idx, true
}

func (s *slot) clear() {
	if s.release != nil {
		s.release()
	}
	*s = slot{}
}

// walkItems implements SPEC_FULL.md section 4.2.a: the per-item bounds,
// type, and length checks on an item-bearing page, followed by the
// sort-order check and overflow/off-record handling.
func walkItems(ctx context.Context, src PageSource, proc ItemProcessor, params Params, frags *fragmentMap, p *Page, onOff onOffFunc) (int, error) {
	pk := p.Header.Type
	collate := collationFor(pk, params)

	var keySlot, dataSlot slot
	defer keySlot.clear()
	defer dataSlot.clear()

	body := p.Body
	var off uint32
	idx := 0
	for off < uint32(len(body)) {
		it, next, ok := readItem(body, off)
		if !ok {
			return idx, newVerifyError(ExtentViolation, p.Addr, idx,
				"item %d on page at addr %d extends past the end of the page", idx, p.Addr)
		}
		if !itemAllowedOnPage(it.Kind, pk) {
			return idx, newVerifyError(FormatViolation, p.Addr, idx,
				"item %d on page at addr %d has type %s, illegal on a %s page", idx, p.Addr, it.Kind, pk)
		}
		if err := checkItemLength(it); err != nil {
			return idx, wrapVerifyError(FormatViolation, p.Addr, idx, err,
				"item %d on page at addr %d has an invalid length for its type", idx, p.Addr)
		}

		if it.Kind.isOverflowKind() {
			if err := validateOverflowItem(ctx, src, proc, params, frags, p.Addr, idx, it); err != nil {
				return idx, err
			}
		}

		if it.Kind == itemOff {
			ref, _ := parseOffRecord(it.Payload)
			if err := checkOffWithinFile(frags, params.AllocSize, p.Addr, idx, ref); err != nil {
				return idx, err
			}
			if onOff != nil && pk == pageRowLeaf {
				if err := onOff(idx, ref); err != nil {
					return idx, err
				}
			}
		}

		if it.Kind.isKeyKind() {
			if err := rotateAndCompare(ctx, src, proc, pk, &keySlot, it, idx, collate, p.Addr); err != nil {
				return idx, err
			}
		}
		if it.Kind.isDupDataKind() {
			dupCollate := params.DupCollation
			if dupCollate == nil {
				dupCollate = collate
			}
			if err := rotateAndCompare(ctx, src, proc, pk, &dataSlot, it, idx, dupCollate, p.Addr); err != nil {
				return idx, err
			}
		}

		off = next
		idx++
	}
	return idx, nil
}

func rotateAndCompare(ctx context.Context, src PageSource, proc ItemProcessor, pk pageKind, s *slot, it item, idx int, collate CmpFunc, pageAddr uint32) error {
	bytes, release, err := proc.Resolve(ctx, src, pk, it)
	if err != nil {
		return err
	}
	if s.set {
		if collate(s.bytes, bytes) >= 0 {
			if release != nil {
				release()
			}
			return newVerifyError(OrderViolation, pageAddr, idx,
				"item %d and item %d on page at addr %d are incorrectly sorted", s.idx+1, idx+1, pageAddr)
		}
	}
	s.replace(bytes, release, idx)
	return nil
}

func checkItemLength(it item) error {
	switch {
	case it.Kind.isOverflowKind():
		if it.Length != ovflRefSize {
			return errItemLength(it, ovflRefSize)
		}
	case it.Kind == itemOff:
		if it.Length != offRecordSize {
			return errItemLength(it, offRecordSize)
		}
	case it.Kind == itemDel:
		if it.Length != 0 {
			return errItemLength(it, 0)
		}
	}
	return nil
}

func errItemLength(it item, want uint32) error {
	return &lengthError{kind: it.Kind, got: it.Length, want: want}
}

type lengthError struct {
	kind itemKind
	got  uint32
	want uint32
}

func (e *lengthError) Error() string {
	return e.kind.String() + " item has wrong length"
}

// validateOverflowItem loads and recursively validates the overflow page
// referenced by an overflow-variant item, and checks that the overflow
// page's own byte size matches the reference's datalen (SPEC_FULL.md
// section 10, "overflow-page byte-size cross-check").
func validateOverflowItem(ctx context.Context, src PageSource, proc ItemProcessor, params Params, frags *fragmentMap, pageAddr uint32, idx int, it item) error {
	ref, ok := parseOvflRef(it.Payload)
	if !ok {
		return newVerifyError(FormatViolation, pageAddr, idx, "item %d on page at addr %d has a malformed overflow reference", idx, pageAddr)
	}
	if frags != nil {
		end := uint64(ref.Addr) + uint64(fragCount(ref.Size, params.AllocSize))
		if end > uint64(frags.frags) {
			return newVerifyError(ExtentViolation, pageAddr, idx,
				"overflow item %d on page at addr %d references non-existent file pages", idx, pageAddr)
		}
	}
	ovflPage, release, err := src.PageIn(ctx, ref.Addr, ref.Size)
	if err != nil {
		return wrapVerifyError(ExtentViolation, pageAddr, idx, err,
			"overflow item %d on page at addr %d could not be loaded", idx, pageAddr)
	}
	defer release()
	if ovflPage.Header.DataLen != ref.DataLen {
		return newVerifyError(FormatViolation, pageAddr, idx,
			"overflow item %d on page at addr %d references a page whose size does not match the reference", idx, pageAddr)
	}
	return validatePage(ctx, src, proc, params, frags, ovflPage, nil)
}
