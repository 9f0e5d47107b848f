package wtverify

import "testing"

func TestReadItemRoundTrip(t *testing.T) {
	body := encodeItem(itemKey, []byte("hello"))
	it, next, ok := readItem(body, 0)
	if !ok {
		t.Fatalf("expected readItem to succeed")
	}
	if it.Kind != itemKey {
		t.Errorf("expected itemKey, got %v", it.Kind)
	}
	if string(it.Payload) != "hello" {
		t.Errorf("expected payload %q, got %q", "hello", it.Payload)
	}
	if next != uint32(len(body)) {
		t.Errorf("expected next offset %d, got %d", len(body), next)
	}
}

func TestReadItemTruncatedHeader(t *testing.T) {
	if _, _, ok := readItem([]byte{1, 2}, 0); ok {
		t.Fatalf("expected a 2-byte buffer to fail the 4-byte header bounds check")
	}
}

func TestReadItemTruncatedPayload(t *testing.T) {
	body := encodeItem(itemData, []byte("xx"))
	if _, _, ok := readItem(body[:len(body)-1], 0); ok {
		t.Fatalf("expected a payload cut one byte short to fail")
	}
}

func TestParseOvflRefRejectsWrongLength(t *testing.T) {
	if _, ok := parseOvflRef([]byte{1, 2, 3}); ok {
		t.Fatalf("expected a short payload to be rejected")
	}
}

func TestParseOffRecordRoundTrip(t *testing.T) {
	buf := make([]byte, offRecordSize)
	buf[0] = 7
	ref, ok := parseOffRecord(buf)
	if !ok {
		t.Fatalf("expected parseOffRecord to succeed")
	}
	if ref.Addr != 7 {
		t.Errorf("expected addr 7, got %d", ref.Addr)
	}
}

func TestItemAllowedOnPage(t *testing.T) {
	cases := []struct {
		kind    itemKind
		page    pageKind
		allowed bool
	}{
		{itemKey, pageRowLeaf, true},
		{itemKey, pageDupLeaf, false},
		{itemDel, pageColVar, true},
		{itemDel, pageColFix, false},
		{itemOff, pageRowInt, true},
		{itemDataDup, pageDupLeaf, true},
	}
	for _, c := range cases {
		if got := itemAllowedOnPage(c.kind, c.page); got != c.allowed {
			t.Errorf("itemAllowedOnPage(%v, %v) = %v, want %v", c.kind, c.page, got, c.allowed)
		}
	}
}
