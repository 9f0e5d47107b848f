package wtverify

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// walker drives the recursive descent described in SPEC_FULL.md section
// 4.4. It owns the single pendingLeaf carryover slot across the entire
// walk — per the re-architecture guidance, this must not be a per-frame
// local, since it crosses frame boundaries at the same tree level.
type walker struct {
	ctx    context.Context
	src    PageSource
	proc   ItemProcessor
	params Params
	frags  *fragmentMap
	dump   io.Writer

	pendingLeaf     *Page
	pendingLeafRel  func()
	pendingLeafKind pageKind
	hasPendingLeaf  bool

	pageCount int
	progress  ProgressFunc
	target    string
}

// walkTree is the entry point for one tree (the primary tree rooted at
// params.RootAddr, or an off-page duplicate subtree rooted at an OFF
// item's reference). isRoot selects between the two: a root call adopts
// the loaded page's own level and resets start_recno bookkeeping; a
// non-root call enforces expectedLevel, expectedStartRecno and (for
// column pages) expectedRecords. It returns the page's own record total
// (meaningful for column pages only; 0 for row/dup pages) so the caller
// can verify it against the declaring OFF entry (spec.md section 3
// invariant 9 / section 4.4 step 4).
func (w *walker) walkTree(off offRecord, parentKey []byte, expectedLevel uint8, expectedStartRecno uint64, expectedRecords uint64, isRoot bool) (uint64, error) {
	page, release, err := w.loadPage(off.Addr, off.Size, isRoot)
	if err != nil {
		return 0, err
	}
	// retained becomes true when leafExit transfers release ownership to
	// the pendingLeaf slot (row/dup leaves, released later by the next
	// sibling's boundary check or by teardown); every other exit path
	// releases here.
	retained := false
	defer func() {
		if !retained {
			release()
		}
	}()

	w.pageCount++
	if w.progress != nil && w.pageCount%10 == 0 {
		w.progress(w.target, w.pageCount)
	}

	var onOff onOffFunc
	if page.Header.Type == pageRowLeaf {
		onOff = func(entryIdx int, ref offRecord) error {
			_, err := w.walkTree(ref, nil, noLevel, 0, 0, true)
			return err
		}
	}
	if err := validatePage(w.ctx, w.src, w.proc, w.params, w.frags, page, onOff); err != nil {
		return 0, err
	}
	if w.dump != nil {
		dumpPage(w.dump, page)
	}

	level := page.Header.Level
	if !isRoot && level != expectedLevel {
		return 0, newVerifyError(CrossPageViolation, page.Addr, -1,
			"page at addr %d has level %d, expected %d to match its parent", page.Addr, level, expectedLevel)
	}
	isColumn := page.Header.Type == pageColInt || page.Header.Type == pageColFix ||
		page.Header.Type == pageColRCC || page.Header.Type == pageColVar
	if isColumn {
		wantRecno := uint64(1)
		if !isRoot {
			wantRecno = expectedStartRecno
		}
		if page.Header.StartRecno != wantRecno {
			return 0, newVerifyError(CrossPageViolation, page.Addr, -1,
				"page at addr %d has start_recno %d, expected %d", page.Addr, page.Header.StartRecno, wantRecno)
		}
	} else {
		if page.Header.StartRecno != 0 {
			return 0, newVerifyError(FormatViolation, page.Addr, -1,
				"row/dup page at addr %d has a non-zero start_recno", page.Addr)
		}
		if !isRoot {
			if err := w.checkParentEdge(page, parentKey); err != nil {
				return 0, err
			}
		}
	}

	var records uint64
	if page.Header.Type.isLeafShape() {
		if isColumn {
			records = columnLeafRecordCount(page, w.params)
		}
		retained = w.leafExit(page, release)
	} else {
		records, err = w.descendInternal(page)
		if err != nil {
			return 0, err
		}
	}

	if isColumn && !isRoot && records != expectedRecords {
		return 0, newVerifyError(CrossPageViolation, page.Addr, -1,
			"page at addr %d has %d records, expected %d to match its parent", page.Addr, records, expectedRecords)
	}

	return records, nil
}

// loadPage retries on ErrRestart only when isRoot, matching the restart
// semantics in SPEC_FULL.md section 10: deeper loads are stabilized by
// the parent's hazard reference, so a restart there is a hard error.
func (w *walker) loadPage(addr, size uint32, isRoot bool) (*Page, func(), error) {
	for {
		page, release, err := w.src.PageIn(w.ctx, addr, size)
		if err == nil {
			return page, release, nil
		}
		if isRoot && errors.Is(err, ErrRestart) {
			continue
		}
		return nil, nil, wrapVerifyError(ExtentViolation, addr, -1, err,
			"page at addr %d could not be loaded", addr)
	}
}

// checkParentEdge implements the first-entry boundary check against the
// current page (SPEC_FULL.md section 4.3) and, if a leaf was retained
// from a previous sibling descent, the last-entry boundary check against
// that leaf before releasing it.
func (w *walker) checkParentEdge(page *Page, parentKey []byte) error {
	if w.hasPendingLeaf {
		if err := w.compareWithPendingLeaf(parentKey); err != nil {
			w.releasePendingLeaf()
			return err
		}
		w.releasePendingLeaf()
	}
	if parentKey == nil {
		return nil
	}
	first, ok := firstKeyItem(page)
	if !ok {
		return nil
	}
	collate := collationFor(page.Header.Type, w.params)
	return compareBoundary(w.ctx, w.src, w.proc, page.Header.Type, parentKey, first, firstEntryMode, collate)
}

func (w *walker) compareWithPendingLeaf(parentKey []byte) error {
	last, ok := lastKeyItem(w.pendingLeaf)
	if !ok {
		return nil
	}
	collate := collationFor(w.pendingLeafKind, w.params)
	return compareBoundary(w.ctx, w.src, w.proc, w.pendingLeafKind, parentKey, last, lastEntryMode, collate)
}

func (w *walker) releasePendingLeaf() {
	if w.pendingLeafRel != nil {
		w.pendingLeafRel()
	}
	w.pendingLeaf, w.pendingLeafRel, w.hasPendingLeaf = nil, nil, false
}

// leafExit implements SPEC_FULL.md section 4.4 step 7: fixed/rcc/variable
// column leaves return immediately; row/dup leaves are retained in the
// walker's single pendingLeaf slot, releasing whatever page was already
// pinned there (a previous leaf that never got compared, i.e. the last
// leaf under an internal subtree that had no following sibling at this
// level — it is released here rather than leaked). It reports whether it
// took ownership of release, so walkTree's deferred release is skipped
// in that case — the pendingLeaf slot releases it later, exactly once.
func (w *walker) leafExit(page *Page, release func()) bool {
	switch page.Header.Type {
	case pageRowLeaf, pageDupLeaf:
		w.releasePendingLeaf()
		w.pendingLeaf, w.pendingLeafRel, w.pendingLeafKind, w.hasPendingLeaf = page, release, page.Header.Type, true
		return true
	default:
		return false
	}
}

// descendInternal implements SPEC_FULL.md section 4.4 step 8. It returns
// the page's own record total: for COL_INT, the sum of its children's
// (cross-checked) record counts; for ROW_INT/DUP_INT, 0 (not applicable).
func (w *walker) descendInternal(page *Page) (uint64, error) {
	switch page.Header.Type {
	case pageColInt:
		offs, err := walkOffRecords(page)
		if err != nil {
			return 0, err
		}
		recno := page.Header.StartRecno
		var total uint64
		for _, child := range offs {
			if _, err := w.walkTree(child, nil, page.Header.Level-1, recno, child.Records, false); err != nil {
				return 0, err
			}
			recno += child.Records
			total += child.Records
		}
		return total, nil
	case pageRowInt, pageDupInt:
		return 0, w.descendKeyed(page)
	default:
		return 0, nil
	}
}

func (w *walker) descendKeyed(page *Page) error {
	body := page.Body
	// Entries alternate KEY, OFF, KEY, OFF, ...; each OFF's child is
	// recursed into with the immediately preceding KEY as its parent_rip,
	// per SPEC_FULL.md section 4.4 step 8 ("recurse with the current key
	// as the child's parent_rip"). A leading OFF with no preceding key
	// (the leftmost child) recurses with a nil parent key.
	var off uint32
	idx := 0
	var pendingKey []byte
	var pendingRelease func()
	defer func() {
		if pendingRelease != nil {
			pendingRelease()
		}
	}()
	for off < uint32(len(body)) {
		it, next, ok := readItem(body, off)
		if !ok {
			return newVerifyError(ExtentViolation, page.Addr, idx,
				"item %d on page at addr %d extends past the end of the page", idx, page.Addr)
		}
		switch {
		case it.Kind.isKeyKind():
			if pendingRelease != nil {
				pendingRelease()
				pendingRelease = nil
			}
			keyBytes, release, err := w.proc.Resolve(w.ctx, w.src, page.Header.Type, it)
			if err != nil {
				return err
			}
			pendingKey, pendingRelease = keyBytes, release
		case it.Kind == itemOff:
			ref, _ := parseOffRecord(it.Payload)
			_, err := w.walkTree(ref, pendingKey, page.Header.Level-1, 0, 0, false)
			if pendingRelease != nil {
				pendingRelease()
				pendingRelease = nil
			}
			pendingKey = nil
			if err != nil {
				return err
			}
		}
		off = next
		idx++
	}
	return nil
}

// teardown releases the last retained leaf, if any, when the walk
// completes (no internal key ever followed it, so it was never
// compared). This matches SPEC_FULL.md section 4.4 step 9's last clause.
func (w *walker) teardown() {
	w.releasePendingLeaf()
}

func firstKeyItem(page *Page) (item, bool) {
	return findKeyItem(page, false)
}

func lastKeyItem(page *Page) (item, bool) {
	return findKeyItem(page, true)
}

func findKeyItem(page *Page, last bool) (item, bool) {
	body := page.Body
	var off uint32
	var found item
	ok := false
	for off < uint32(len(body)) {
		it, next, valid := readItem(body, off)
		if !valid {
			break
		}
		if it.Kind.isKeyKind() {
			found, ok = it, true
			if !last {
				return found, true
			}
		}
		off = next
	}
	return found, ok
}

func dumpPage(w io.Writer, p *Page) {
	fmt.Fprintf(w, "page addr=%d type=%s level=%d\n", p.Addr, p.Header.Type, p.Header.Level)
}
