// Package huffman implements a minimal Huffman codec for the
// key/data compression collaborator (huffman_decode in SPEC_FULL.md
// section 6.4). No example in the retrieval pack imports a genuine
// ecosystem Huffman library for this domain — the only Huffman-shaped
// code present is a verbatim copy of the standard library's
// compress/flate — so this codec is hand-written and documented as a
// standard-library-equivalent in DESIGN.md rather than grounded on a
// third-party dependency.
package huffman

import (
	"container/heap"
	"fmt"
)

// Table is a Huffman code table built from symbol frequencies, used for
// both encode and decode. Codes are read off the Huffman tree (left 0,
// right 1); they are not reassigned into canonical order.
type Table struct {
	codeLen [256]uint8
	code    [256]uint16
	decode  map[uint32]decodeEntry // (length<<16 | code) -> symbol
}

type decodeEntry struct {
	symbol byte
}

type node struct {
	freq        int
	symbol      byte
	isLeaf      bool
	left, right *node
}

type nodeHeap []*node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].freq < h[j].freq }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)         { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// BuildTable constructs a Huffman table from byte frequencies.
// freq[b] is the observed count of byte value b in the training corpus.
func BuildTable(freq [256]int) (*Table, error) {
	h := &nodeHeap{}
	heap.Init(h)
	for b, f := range freq {
		if f > 0 {
			heap.Push(h, &node{freq: f, symbol: byte(b), isLeaf: true})
		}
	}
	if h.Len() == 0 {
		return nil, fmt.Errorf("huffman: no symbols with non-zero frequency")
	}
	if h.Len() == 1 {
		only := heap.Pop(h).(*node)
		heap.Push(h, &node{freq: only.freq, left: only, right: &node{freq: 0, symbol: 0, isLeaf: true}})
	}
	for h.Len() > 1 {
		a := heap.Pop(h).(*node)
		b := heap.Pop(h).(*node)
		heap.Push(h, &node{freq: a.freq + b.freq, left: a, right: b})
	}
	root := heap.Pop(h).(*node)

	t := &Table{decode: make(map[uint32]decodeEntry)}
	var walk func(n *node, depth int, code uint16)
	walk = func(n *node, depth int, code uint16) {
		if n.isLeaf {
			if depth == 0 {
				depth = 1
			}
			t.codeLen[n.symbol] = uint8(depth)
			t.code[n.symbol] = code
			t.decode[uint32(depth)<<16|uint32(code)] = decodeEntry{symbol: n.symbol}
			return
		}
		walk(n.left, depth+1, code<<1)
		walk(n.right, depth+1, code<<1|1)
	}
	walk(root, 0, 0)
	return t, nil
}

// Encode appends the Huffman-coded bits of src to dst, followed by one
// trailer byte holding the number of zero padding bits (0-7) that end
// the last coded byte, and returns the extended slice.
func (t *Table) Encode(dst, src []byte) []byte {
	var acc uint32
	var nbits uint
	for _, b := range src {
		acc = acc<<uint(t.codeLen[b]) | uint32(t.code[b])
		nbits += uint(t.codeLen[b])
		for nbits >= 8 {
			nbits -= 8
			dst = append(dst, byte(acc>>nbits))
		}
	}
	pad := byte(0)
	if nbits > 0 {
		pad = byte(8 - nbits)
		dst = append(dst, byte(acc<<(8-nbits)))
	}
	return append(dst, pad)
}

// Decode decodes src as produced by Encode, writing output bytes into
// dst and returning how many it wrote. The trailer byte tells Decode
// how many padding bits end the last coded byte, so the padding is
// never decoded as symbols. dst must be large enough for the worst case
// (one output byte per coded bit); a shorter dst yields an error.
func (t *Table) Decode(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	limit := (len(src)-1)*8 - int(src[len(src)-1]) // coded bits, excluding padding
	src = src[:len(src)-1]
	used := 0
	var acc uint32
	var nbits uint
	pos := 0
	out := 0
	for {
		for nbits < 16 && pos < len(src) {
			acc = acc<<8 | uint32(src[pos])
			pos++
			nbits += 8
		}
		if nbits == 0 || used >= limit {
			return out, nil
		}
		found := false
		for length := uint(1); length <= 16 && length <= nbits && used+int(length) <= limit; length++ {
			code := (acc >> (nbits - length)) & ((1 << length) - 1)
			if e, ok := t.decode[uint32(length)<<16|code]; ok {
				if out >= len(dst) {
					return out, fmt.Errorf("huffman: destination buffer exhausted at output byte %d", out)
				}
				dst[out] = e.symbol
				out++
				nbits -= length
				used += int(length)
				found = true
				break
			}
		}
		if !found {
			return out, fmt.Errorf("huffman: no code matches the bits after output byte %d", out)
		}
	}
}

// Codec adapts a Table to the wtverify.Codec interface
// (Decode(dst, src) (n int, err error)).
type Codec struct {
	Table *Table
}

func (c *Codec) Decode(dst, src []byte) (int, error) {
	return c.Table.Decode(dst, src)
}
