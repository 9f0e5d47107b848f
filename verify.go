package wtverify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// Diagnostic is one human-readable message pinpointing the offending
// page address (and entry number, where applicable) produced during a
// walk.
type Diagnostic struct {
	Category Category
	Addr     uint32
	Entry    int // -1 when not applicable
	Message  string
}

func (d Diagnostic) String() string {
	if d.Entry >= 0 {
		return fmt.Sprintf("[%s] addr=%d entry=%d: %s", d.Category, d.Addr, d.Entry, d.Message)
	}
	return fmt.Sprintf("[%s] addr=%d: %s", d.Category, d.Addr, d.Message)
}

// Report is the result of a Verify/VerifyDump call.
type Report struct {
	OK               bool
	Diagnostics      []Diagnostic
	PagesVerified    int
	FragmentsTotal   uint32
	FragmentsCovered uint32
}

// Verify walks src's tree from the descriptor page, proving the file is
// internally consistent per SPEC_FULL.md. It never writes to src. progress
// may be nil; when non-nil it fires every 10 pages and exactly once more
// at the end regardless of success or failure.
func Verify(ctx context.Context, src PageSource, params Params, progress ProgressFunc) (*Report, error) {
	return verify(ctx, src, params, progress, nil)
}

// VerifyDump behaves like Verify but additionally writes a one-line
// description of every visited page to dump, for debugging.
func VerifyDump(ctx context.Context, src PageSource, params Params, progress ProgressFunc, dump io.Writer) (*Report, error) {
	return verify(ctx, src, params, progress, dump)
}

func verify(ctx context.Context, src PageSource, params Params, progress ProgressFunc, dump io.Writer) (*Report, error) {
	target := params.Target
	fileFrags := src.FileFragments()
	if fileFrags > math.MaxInt32 {
		ve := newVerifyError(ResourceViolation, 0, -1,
			"file is too large to verify: %d fragments exceeds the bitmap index limit", fileFrags)
		report := &Report{FragmentsTotal: fileFrags, Diagnostics: []Diagnostic{ve.Diag}}
		if params.Sink != nil {
			params.Sink.Emit(ve.Diag)
		}
		if progress != nil {
			progress(target, 0)
		}
		return report, ve
	}
	if params.AllocSize == 0 {
		params.AllocSize = src.FragmentSize()
	}

	report := &Report{FragmentsTotal: fileFrags}
	var sink []Diagnostic
	emit := func(d Diagnostic) {
		sink = append(sink, d)
		if params.Sink != nil {
			params.Sink.Emit(d)
		}
	}
	collectAndAbort := func(err error) (*Report, error) {
		var ve *VerifyError
		if errors.As(err, &ve) {
			emit(ve.Diag)
		}
		report.Diagnostics = sink
		report.OK = false
		if progress != nil {
			progress(target, report.PagesVerified)
		}
		return report, err
	}

	proc := newStdItemProcessor(params.Codec)
	frags := newFragmentMap(fileFrags)

	descPage, releaseDesc, err := loadRootWithRetry(ctx, src, DescriptorAddr, DescriptorSize)
	if err != nil {
		return collectAndAbort(wrapVerifyError(ExtentViolation, DescriptorAddr, -1, err, "descriptor page could not be loaded"))
	}
	defer releaseDesc()

	if err := validatePage(ctx, src, proc, params, frags, descPage, nil); err != nil {
		return collectAndAbort(err)
	}

	w := &walker{
		ctx:      ctx,
		src:      src,
		proc:     proc,
		params:   params,
		frags:    frags,
		dump:     dump,
		progress: progress,
		target:   target,
	}
	w.pageCount = 1 // the descriptor page itself

	root := offRecord{Addr: params.RootAddr, Size: params.RootSize}
	if _, err := w.walkTree(root, nil, noLevel, 0, 0, true); err != nil {
		w.teardown()
		return collectAndAbort(err)
	}
	w.teardown()

	for _, r := range frags.uncoveredRanges() {
		var msg string
		if r.End-r.Start == 1 {
			msg = fmt.Sprintf("fragment %d was never verified", r.Start)
		} else {
			msg = fmt.Sprintf("fragments %d to %d were never verified", r.Start, r.End-1)
		}
		emit(Diagnostic{Category: ExtentViolation, Addr: r.Start, Entry: -1, Message: msg})
	}

	report.PagesVerified = w.pageCount
	report.FragmentsCovered = frags.count()
	report.Diagnostics = sink
	report.OK = len(sink) == 0

	if progress != nil {
		progress(target, report.PagesVerified)
	}
	if !report.OK {
		return report, newVerifyError(ExtentViolation, 0, -1, "file coverage is incomplete")
	}
	return report, nil
}

// loadRootWithRetry retries the descriptor-page load on ErrRestart, the
// only load in the whole walk allowed to retry (SPEC_FULL.md section 10).
func loadRootWithRetry(ctx context.Context, src PageSource, addr, size uint32) (*Page, func(), error) {
	for {
		page, release, err := src.PageIn(ctx, addr, size)
		if err == nil {
			return page, release, nil
		}
		if errors.Is(err, ErrRestart) {
			continue
		}
		return nil, nil, err
	}
}
