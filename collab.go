package wtverify

import (
	"context"
	"io"
)

// CmpFunc is a collation function, matching the reference engine's own
// compat.go alias of the same name and signature.
type CmpFunc = func(a, b []byte) int

// PageSource is the page cache collaborator (page_in/page_out in
// SPEC_FULL.md section 6.4). Implementations must return a pinned page
// that stays valid until Release is called; see cache.MmapSource for the
// default memory-mapped implementation.
type PageSource interface {
	// PageIn loads the page at the given fragment address and size,
	// returning it and a Release function. ErrRestart indicates the root
	// page moved while being read; only the verifier's top-level retry
	// loop (see Verify) is allowed to retry on ErrRestart.
	PageIn(ctx context.Context, addr, size uint32) (page *Page, release func(), err error)

	// FragmentSize returns the file's minimum allocation unit.
	FragmentSize() uint32

	// FileFragments returns the total number of fragments in the file.
	FileFragments() uint32
}

// ErrRestart is returned by PageSource.PageIn when the requested page
// moved while being read. Per SPEC_FULL.md section 10, only the root load
// retries on this; any other occurrence is a hard error.
var ErrRestart = restartError{}

type restartError struct{}

func (restartError) Error() string { return "page moved while being read, restart required" }

// ItemProcessor resolves a key/data item to contiguous bytes, following
// Huffman decompression and/or an overflow-page load as needed
// (item_process in SPEC_FULL.md section 6.4).
type ItemProcessor interface {
	// Resolve returns the materialized bytes for it. If the item is a
	// plain on-page byte run, Resolve may return it directly with a nil
	// release. Otherwise it returns a pooled scratch.Buffer and/or a
	// pinned overflow Page, both released via the returned func.
	Resolve(ctx context.Context, src PageSource, pageKind pageKind, it item) (data []byte, release func(), err error)
}

// Codec is the Huffman decompression collaborator (huffman_decode in
// SPEC_FULL.md section 6.4). A nil Codec means the format revision being
// verified has compression unconfigured, and items are used as on-page
// bytes directly.
type Codec interface {
	Decode(dst, src []byte) (n int, err error)
}

// DiagSink receives diagnostics as they are produced, in addition to
// their accumulation in Report.Diagnostics. It is the realization of the
// variadic diagnostic emitter (api_db_errx) described in SPEC_FULL.md
// section 6.1. A nil sink means "collect only, don't stream".
type DiagSink interface {
	Emit(d Diagnostic)
}

// WriterDiagSink streams diagnostics as formatted lines to an io.Writer.
type WriterDiagSink struct {
	W io.Writer
}

func (s WriterDiagSink) Emit(d Diagnostic) {
	io.WriteString(s.W, d.String()+"\n")
}

// ChanDiagSink streams diagnostics to a channel. Callers must drain it
// concurrently with Verify or the walk will block on a full channel.
type ChanDiagSink chan<- Diagnostic

func (s ChanDiagSink) Emit(d Diagnostic) { s <- d }

// ProgressFunc is invoked every 10 pages with the cumulative page count,
// and exactly once more at the very end of the walk regardless of
// success or failure, matching SPEC_FULL.md section 10's progress
// callback requirement.
type ProgressFunc func(target string, pageCount int)
