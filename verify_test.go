package wtverify

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
)

// fakeSource is an in-memory PageSource for exercising Verify without a
// real memory-mapped file, keyed by fragment address.
type fakeSource struct {
	pages     map[uint32][]byte
	allocSize uint32
	fileFrags uint32
	pins      map[uint32]int
}

func newFakeSource(allocSize, fileFrags uint32) *fakeSource {
	return &fakeSource{
		pages:     make(map[uint32][]byte),
		allocSize: allocSize,
		fileFrags: fileFrags,
		pins:      make(map[uint32]int),
	}
}

func (s *fakeSource) put(addr uint32, raw []byte) { s.pages[addr] = raw }

func (s *fakeSource) PageIn(ctx context.Context, addr, size uint32) (*Page, func(), error) {
	raw, ok := s.pages[addr]
	if !ok || uint32(len(raw)) != size {
		return nil, nil, ErrRestart
	}
	p, err := NewPage(addr, size, raw)
	if err != nil {
		return nil, nil, err
	}
	s.pins[addr]++
	release := func() { s.pins[addr]-- }
	return p, release, nil
}

func (s *fakeSource) FragmentSize() uint32  { return s.allocSize }
func (s *fakeSource) FileFragments() uint32 { return s.fileFrags }

func (s *fakeSource) allReleased() bool {
	for _, n := range s.pins {
		if n != 0 {
			return false
		}
	}
	return true
}

// ---- fixture builders ----

func encodeItem(kind itemKind, payload []byte) []byte {
	hdr := uint32(kind) | uint32(len(payload))<<8
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], hdr)
	copy(buf[4:], payload)
	return buf
}

func encodePageHeader(kind pageKind, level uint8, startRecno uint64, dataLen uint32) []byte {
	buf := make([]byte, pageHeaderSize)
	buf[0] = byte(kind)
	buf[1] = level
	binary.LittleEndian.PutUint64(buf[2:10], startRecno)
	binary.LittleEndian.PutUint32(buf[22:26], dataLen)
	return buf
}

func buildPage(kind pageKind, level uint8, startRecno uint64, dataLen uint32, body []byte) []byte {
	return append(encodePageHeader(kind, level, startRecno, dataLen), body...)
}

func zeroDescriptorBody() []byte {
	const bodyLen = DescriptorSize - pageHeaderSize
	body := make([]byte, bodyLen)
	binary.LittleEndian.PutUint32(body[0:4], BTreeMagic)
	binary.LittleEndian.PutUint16(body[4:6], BTreeMajorVersion)
	binary.LittleEndian.PutUint16(body[6:8], BTreeMinorVersion)
	return body
}

func buildDescriptorPage() []byte {
	return buildPage(pageDescript, noLevel, 0, 0, zeroDescriptorBody())
}

// ---- S1: minimal row tree ----

func TestVerifyMinimalRowTree(t *testing.T) {
	src := newFakeSource(512, 2)
	src.put(0, buildDescriptorPage())

	rowBody := append(append(
		encodeItem(itemKey, []byte("a")),
		encodeItem(itemData, []byte("1"))...),
		append(encodeItem(itemKey, []byte("b")), encodeItem(itemData, []byte("2"))...)...)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, rowBody)
	src.put(1, rootRaw)

	var progressCalls int
	var lastCount int
	progress := func(target string, count int) {
		progressCalls++
		lastCount = count
	}

	report, err := Verify(context.Background(), src, Params{
		RootAddr: 1,
		RootSize: uint32(len(rootRaw)),
		Target:   "test",
	}, progress)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected OK, got diagnostics: %v", report.Diagnostics)
	}
	if report.PagesVerified != 2 {
		t.Errorf("expected 2 pages verified, got %d", report.PagesVerified)
	}
	if progressCalls != 1 {
		t.Errorf("expected progress to fire once for 2 pages, fired %d times", progressCalls)
	}
	if lastCount != 2 {
		t.Errorf("expected final progress count 2, got %d", lastCount)
	}
	if report.FragmentsCovered != report.FragmentsTotal {
		t.Errorf("expected full coverage, got %d/%d", report.FragmentsCovered, report.FragmentsTotal)
	}
	if !src.allReleased() {
		t.Errorf("expected every pinned page to be released")
	}
}

// ---- S2: out-of-order keys ----

func TestVerifyOutOfOrderKeys(t *testing.T) {
	src := newFakeSource(512, 2)
	src.put(0, buildDescriptorPage())

	rowBody := append(append(
		encodeItem(itemKey, []byte("b")),
		encodeItem(itemData, []byte("2"))...),
		append(encodeItem(itemKey, []byte("a")), encodeItem(itemData, []byte("1"))...)...)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, rowBody)
	src.put(1, rootRaw)

	report, err := Verify(context.Background(), src, Params{
		RootAddr: 1,
		RootSize: uint32(len(rootRaw)),
	}, nil)
	if err == nil {
		t.Fatalf("expected an error for out-of-order keys")
	}
	if !IsOrderViolation(err) {
		t.Errorf("expected an OrderViolation, got %v", err)
	}
	if report.OK {
		t.Errorf("expected report.OK == false")
	}
}

// ---- S4: truncated item ----

func TestVerifyTruncatedItem(t *testing.T) {
	src := newFakeSource(512, 2)
	src.put(0, buildDescriptorPage())

	// A KEY item header declaring a length that runs past the page body.
	hdr := uint32(itemKey) | uint32(64)<<8
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, hdr)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, body)
	src.put(1, rootRaw)

	_, err := Verify(context.Background(), src, Params{
		RootAddr: 1,
		RootSize: uint32(len(rootRaw)),
	}, nil)
	if err == nil {
		t.Fatalf("expected an error for a truncated item")
	}
	if !IsExtentViolation(err) {
		t.Errorf("expected an ExtentViolation, got %v", err)
	}
}

// ---- S5: RCC missed compression ----

func TestValidateColRCCMissedCompression(t *testing.T) {
	fixedLen := uint32(4)
	payload := []byte{0xAB, 0xAB, 0xAB, 0xAB}

	entry := func(count uint16) []byte {
		buf := make([]byte, 2+len(payload))
		binary.LittleEndian.PutUint16(buf[0:2], count)
		copy(buf[2:], payload)
		return buf
	}
	body := append(entry(3), entry(4)...)
	page, err := NewPage(1, uint32(pageHeaderSize+len(body)), buildPage(pageColRCC, leafLevel, 0, 0, body))
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	err = validateColRCC(page, Params{FixedLen: fixedLen})
	if err == nil {
		t.Fatalf("expected a missed-compression error")
	}
	cat, ok := CategoryOf(err)
	if !ok || cat != EncoderViolation {
		t.Errorf("expected EncoderViolation, got %v (ok=%v)", cat, ok)
	}
}

// ---- S6: coverage gap ----

func TestVerifyCoverageGap(t *testing.T) {
	src := newFakeSource(512, 3)
	src.put(0, buildDescriptorPage())

	rowBody := append(encodeItem(itemKey, []byte("a")), encodeItem(itemData, []byte("1"))...)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, rowBody)
	src.put(1, rootRaw)
	// Fragment 2 exists in the file (FileFragments=3) but is never
	// referenced by any parent, so it should surface as an uncovered
	// range rather than being loaded at all.

	report, err := Verify(context.Background(), src, Params{
		RootAddr: 1,
		RootSize: uint32(len(rootRaw)),
	}, nil)
	if err == nil {
		t.Fatalf("expected an error for incomplete coverage")
	}
	if report.OK {
		t.Fatalf("expected report.OK == false")
	}
	found := false
	for _, d := range report.Diagnostics {
		if d.Category == ExtentViolation && d.Addr == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a diagnostic for uncovered fragment 2, got %v", report.Diagnostics)
	}
}

// ---- dangling OFF reference ----

func TestValidateColIntDanglingOff(t *testing.T) {
	ref := make([]byte, offRecordSize)
	binary.LittleEndian.PutUint32(ref[0:4], 99) // past end of file
	binary.LittleEndian.PutUint32(ref[4:8], 512)
	binary.LittleEndian.PutUint64(ref[8:16], 1)

	raw := buildPage(pageColInt, 2, 1, 0, ref)
	page, err := NewPage(5, uint32(len(raw)), raw)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	frags := newFragmentMap(10)
	err = validateColInt(page, frags, Params{AllocSize: 512})
	if err == nil {
		t.Fatalf("expected a dangling-OFF error")
	}
	if !IsExtentViolation(err) {
		t.Errorf("expected an ExtentViolation, got %v", err)
	}
}

// ---- multi-level row tree: checkParentEdge + compareWithPendingLeaf ----

func encodeOffRecord(addr, size uint32, records uint64) []byte {
	buf := make([]byte, offRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	binary.LittleEndian.PutUint64(buf[8:16], records)
	return buf
}

func TestVerifyMultiLevelRowTree(t *testing.T) {
	src := newFakeSource(512, 4)
	src.put(0, buildDescriptorPage())

	leaf1Body := append(encodeItem(itemKey, []byte("a")), encodeItem(itemData, []byte("1"))...)
	leaf1Raw := buildPage(pageRowLeaf, leafLevel, 0, 0, leaf1Body)
	src.put(1, leaf1Raw)

	leaf2Body := append(append(
		encodeItem(itemKey, []byte("b")),
		encodeItem(itemData, []byte("2"))...),
		append(encodeItem(itemKey, []byte("c")), encodeItem(itemData, []byte("3"))...)...)
	leaf2Raw := buildPage(pageRowLeaf, leafLevel, 0, 0, leaf2Body)
	src.put(2, leaf2Raw)

	rootBody := append(append(
		encodeItem(itemOff, encodeOffRecord(1, uint32(len(leaf1Raw)), 0)),
		encodeItem(itemKey, []byte("b"))...),
		encodeItem(itemOff, encodeOffRecord(2, uint32(len(leaf2Raw)), 0))...)
	rootRaw := buildPage(pageRowInt, 2, 0, 0, rootBody)
	src.put(3, rootRaw)

	report, err := Verify(context.Background(), src, Params{
		RootAddr: 3,
		RootSize: uint32(len(rootRaw)),
	}, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected OK, got diagnostics: %v", report.Diagnostics)
	}
	if report.PagesVerified != 4 {
		t.Errorf("expected 4 pages verified, got %d", report.PagesVerified)
	}
	if report.FragmentsCovered != report.FragmentsTotal {
		t.Errorf("expected full coverage, got %d/%d", report.FragmentsCovered, report.FragmentsTotal)
	}
	if !src.allReleased() {
		t.Errorf("expected every pinned page to have been released exactly once")
	}
}

// ---- multi-level column tree: start_recno + record-count accounting ----

func TestVerifyColumnIntRecordAccounting(t *testing.T) {
	src := newFakeSource(512, 4)
	src.put(0, buildDescriptorPage())

	entry := func(b byte) []byte { return []byte{b, b, b, b} }

	leaf1Body := append(entry(1), entry(2)...)
	leaf1Raw := buildPage(pageColFix, leafLevel, 1, 0, leaf1Body)
	src.put(1, leaf1Raw)

	leaf2Body := append(append(entry(3), entry(4)...), entry(5)...)
	leaf2Raw := buildPage(pageColFix, leafLevel, 3, 0, leaf2Body)
	src.put(2, leaf2Raw)

	rootBody := append(
		encodeOffRecord(1, uint32(len(leaf1Raw)), 2),
		encodeOffRecord(2, uint32(len(leaf2Raw)), 3)...)
	rootRaw := buildPage(pageColInt, 2, 1, 0, rootBody)
	src.put(3, rootRaw)

	report, err := Verify(context.Background(), src, Params{
		RootAddr: 3,
		RootSize: uint32(len(rootRaw)),
		FixedLen: 4,
	}, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected OK, got diagnostics: %v", report.Diagnostics)
	}
	if !src.allReleased() {
		t.Errorf("expected every pinned page to have been released exactly once")
	}
}

func TestVerifyColumnRecordCountMismatch(t *testing.T) {
	src := newFakeSource(512, 4)
	src.put(0, buildDescriptorPage())

	entry := func(b byte) []byte { return []byte{b, b, b, b} }

	leaf1Body := append(entry(1), entry(2)...)
	leaf1Raw := buildPage(pageColFix, leafLevel, 1, 0, leaf1Body)
	src.put(1, leaf1Raw)

	// Only 2 entries on the page, but the parent OFF record below declares 3.
	leaf2Body := append(entry(3), entry(4)...)
	leaf2Raw := buildPage(pageColFix, leafLevel, 3, 0, leaf2Body)
	src.put(2, leaf2Raw)

	rootBody := append(
		encodeOffRecord(1, uint32(len(leaf1Raw)), 2),
		encodeOffRecord(2, uint32(len(leaf2Raw)), 3)...)
	rootRaw := buildPage(pageColInt, 2, 1, 0, rootBody)
	src.put(3, rootRaw)

	_, err := Verify(context.Background(), src, Params{
		RootAddr: 3,
		RootSize: uint32(len(rootRaw)),
		FixedLen: 4,
	}, nil)
	if err == nil {
		t.Fatalf("expected a record-count mismatch error")
	}
	if cat, ok := CategoryOf(err); !ok || cat != CrossPageViolation {
		t.Errorf("expected CrossPageViolation, got %v (ok=%v)", cat, ok)
	}
}

// ---- Params.Sink streams every diagnostic as it's produced ----

func TestVerifySinkStreaming(t *testing.T) {
	src := newFakeSource(512, 3)
	src.put(0, buildDescriptorPage())
	rowBody := append(encodeItem(itemKey, []byte("a")), encodeItem(itemData, []byte("1"))...)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, rowBody)
	src.put(1, rootRaw)

	ch := make(chan Diagnostic, 4)
	report, err := Verify(context.Background(), src, Params{
		RootAddr: 1,
		RootSize: uint32(len(rootRaw)),
		Sink:     ChanDiagSink(ch),
	}, nil)
	if err == nil {
		t.Fatalf("expected an error for incomplete coverage")
	}
	close(ch)
	var streamed []Diagnostic
	for d := range ch {
		streamed = append(streamed, d)
	}
	if len(streamed) != len(report.Diagnostics) {
		t.Fatalf("sink received %d diagnostics, report holds %d", len(streamed), len(report.Diagnostics))
	}
	for i, d := range streamed {
		if d != report.Diagnostics[i] {
			t.Errorf("sink diagnostic %d = %+v, report diagnostic = %+v", i, d, report.Diagnostics[i])
		}
	}
}

// ---- file too large for the fragment map's index type ----

type oversizedSource struct{ fakeSource }

func (s *oversizedSource) FileFragments() uint32 { return math.MaxInt32 + 1 }

func TestVerifyFileTooLarge(t *testing.T) {
	src := &oversizedSource{*newFakeSource(512, 0)}

	report, err := Verify(context.Background(), src, Params{}, nil)
	if err == nil {
		t.Fatalf("expected a resource-violation error")
	}
	cat, ok := CategoryOf(err)
	if !ok || cat != ResourceViolation {
		t.Errorf("expected ResourceViolation, got %v (ok=%v)", cat, ok)
	}
	// Regression: Verify must never pair a nil *Report with a non-nil
	// error, since callers (e.g. cmd/wtverify) range over
	// report.Diagnostics unconditionally.
	if report == nil {
		t.Fatalf("expected a non-nil report alongside the error")
	}
	if len(report.Diagnostics) != 1 {
		t.Errorf("expected exactly one diagnostic, got %d", len(report.Diagnostics))
	}
}

// ---- idempotence: two Verify runs agree ----

func TestVerifyIdempotent(t *testing.T) {
	src := newFakeSource(512, 2)
	src.put(0, buildDescriptorPage())
	rowBody := append(encodeItem(itemKey, []byte("a")), encodeItem(itemData, []byte("1"))...)
	rootRaw := buildPage(pageRowLeaf, leafLevel, 0, 0, rowBody)
	src.put(1, rootRaw)

	params := Params{RootAddr: 1, RootSize: uint32(len(rootRaw))}
	r1, err1 := Verify(context.Background(), src, params, nil)
	r2, err2 := Verify(context.Background(), src, params, nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if r1.OK != r2.OK || len(r1.Diagnostics) != len(r2.Diagnostics) {
		t.Errorf("two verify runs disagreed: %+v vs %+v", r1, r2)
	}
}
