package huffman

import "testing"

func TestTableRoundTrip(t *testing.T) {
	src := []byte("the quick brown fox jumps over the lazy dog, repeatedly, the quick brown fox")

	var freq [256]int
	for _, b := range src {
		freq[b]++
	}
	table, err := BuildTable(freq)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	encoded := table.Encode(nil, src)
	if len(encoded) >= len(src) {
		t.Errorf("expected compression on skewed input, got %d encoded bytes from %d source bytes", len(encoded), len(src))
	}

	dst := make([]byte, len(src)*2)
	n, err := table.Decode(dst, encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(dst[:n]) != string(src) {
		t.Fatalf("round trip mismatch: got %q, want %q", dst[:n], src)
	}
}

func TestBuildTableRejectsEmptyFrequencies(t *testing.T) {
	var freq [256]int
	if _, err := BuildTable(freq); err == nil {
		t.Fatalf("expected an error for an all-zero frequency table")
	}
}

func TestCodecAdaptsTable(t *testing.T) {
	src := []byte("aaaabbbc")
	var freq [256]int
	for _, b := range src {
		freq[b]++
	}
	table, err := BuildTable(freq)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	encoded := table.Encode(nil, src)

	codec := &Codec{Table: table}
	dst := make([]byte, len(src)*2)
	n, err := codec.Decode(dst, encoded)
	if err != nil {
		t.Fatalf("Codec.Decode: %v", err)
	}
	if string(dst[:n]) != string(src) {
		t.Fatalf("got %q, want %q", dst[:n], src)
	}
}
