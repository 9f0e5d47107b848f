package wtverify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wtbtree/wtverify/internal/scratch"
)

// stdItemProcessor is the default ItemProcessor: it follows overflow
// references through the page source and runs the configured Huffman
// codec, pooling decode buffers through internal/scratch.
type stdItemProcessor struct {
	codec Codec
	pool  *scratch.Pool
}

func newStdItemProcessor(codec Codec) *stdItemProcessor {
	return &stdItemProcessor{codec: codec, pool: scratch.NewPool()}
}

func (p *stdItemProcessor) Resolve(ctx context.Context, src PageSource, pk pageKind, it item) ([]byte, func(), error) {
	if it.Kind.isOverflowKind() {
		ref, ok := parseOvflRef(it.Payload)
		if !ok {
			return nil, nil, fmt.Errorf("overflow item payload is not sizeof(OVFL)")
		}
		ovflPage, release, err := src.PageIn(ctx, ref.Addr, ref.Size)
		if err != nil {
			return nil, nil, err
		}
		if uint32(len(ovflPage.Body)) < ref.DataLen {
			release()
			return nil, nil, fmt.Errorf("overflow page at addr %d is shorter than its reference's datalen %d", ref.Addr, ref.DataLen)
		}
		raw := ovflPage.Body[:ref.DataLen]
		if p.codec == nil {
			return raw, release, nil
		}
		buf := p.pool.Get(len(raw) * 8) // upper bound: one decoded byte per coded bit
		n, err := p.codec.Decode(buf.Bytes, raw)
		release()
		if err != nil {
			buf.Release()
			return nil, nil, fmt.Errorf("huffman decode of overflow item at addr %d: %w", ref.Addr, err)
		}
		return buf.Bytes[:n], buf.Release, nil
	}

	if p.codec == nil {
		return it.Payload, nil, nil
	}
	buf := p.pool.Get(len(it.Payload) * 8)
	n, err := p.codec.Decode(buf.Bytes, it.Payload)
	if err != nil {
		buf.Release()
		return nil, nil, fmt.Errorf("huffman decode: %w", err)
	}
	return buf.Bytes[:n], buf.Release, nil
}

// collationFor selects the primary or duplicate collation for a page
// kind, per SPEC_FULL.md section 4.2.a: DUP_{INT,LEAF} use the duplicate
// collation, ROW_{INT,LEAF} use the primary collation.
func collationFor(pk pageKind, params Params) CmpFunc {
	var fn CmpFunc
	switch pk {
	case pageDupInt, pageDupLeaf:
		fn = params.DupCollation
	case pageRowInt, pageRowLeaf:
		fn = params.Collation
	}
	if fn == nil {
		fn = bytes.Compare
	}
	return fn
}

// boundaryMode selects which edge check compareBoundary performs.
type boundaryMode int

const (
	firstEntryMode boundaryMode = iota
	lastEntryMode
)

// compareBoundary implements the Key Comparator (SPEC_FULL.md section
// 4.3): materializes the child item's key, possibly through overflow or
// Huffman decode, and checks it against the parent key under the given
// mode.
func compareBoundary(ctx context.Context, src PageSource, proc ItemProcessor, childKind pageKind, parentKey []byte, childItem item, mode boundaryMode, collate CmpFunc) error {
	childKey, release, err := proc.Resolve(ctx, src, childKind, childItem)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}

	cmp := collate(parentKey, childKey)
	switch mode {
	case firstEntryMode:
		if cmp > 0 {
			return newVerifyError(OrderViolation, childItem.Offset, -1,
				"parent key is greater than the first key of its child page")
		}
	case lastEntryMode:
		if cmp <= 0 {
			return newVerifyError(OrderViolation, childItem.Offset, -1,
				"last key of the previous leaf is not less than the next parent key")
		}
	}
	return nil
}
