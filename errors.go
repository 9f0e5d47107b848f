package wtverify

import (
	"errors"
	"fmt"
)

// Category groups diagnostics by the taxonomy in the verifier's error
// handling design: format, extent, order, cross-page, encoder, and
// resource violations. Unlike a plain formatted string, a Category lets
// callers branch on the kind of failure without parsing messages.
type Category int

const (
	// FormatViolation covers unknown types, illegal type/page combinations,
	// wrong item length, non-zero reserved bytes, wrong level, wrong
	// magic/version, wrong page-size parameters, deletion-marker NUL
	// violations, and zero RCC counts.
	FormatViolation Category = iota

	// ExtentViolation covers items extending past their page, references
	// extending past end of file, and fragment coverage double-claims.
	ExtentViolation

	// OrderViolation covers out-of-order keys, out-of-order duplicate
	// data, and parent/child boundary key mismatches.
	OrderViolation

	// CrossPageViolation covers level mismatches, start_recno mismatches,
	// and record-count mismatches between parent and child.
	CrossPageViolation

	// EncoderViolation covers RCC entries that should have been combined
	// by the writer but weren't.
	EncoderViolation

	// ResourceViolation covers files too large for the fragment map's
	// index type.
	ResourceViolation
)

func (c Category) String() string {
	switch c {
	case FormatViolation:
		return "format"
	case ExtentViolation:
		return "extent"
	case OrderViolation:
		return "order"
	case CrossPageViolation:
		return "cross-page"
	case EncoderViolation:
		return "encoder"
	case ResourceViolation:
		return "resource"
	default:
		return "unknown"
	}
}

// VerifyError is the error returned by Verify/VerifyDump when the walk is
// aborted. It always carries the Diagnostic that caused the abort; Report
// still holds every diagnostic collected before the abort.
type VerifyError struct {
	Diag Diagnostic
	Err  error // wrapped lower-level error, if any
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wtverify: %s: %v", e.Diag.Message, e.Err)
	}
	return fmt.Sprintf("wtverify: %s", e.Diag.Message)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

func newVerifyError(cat Category, addr uint32, entry int, format string, args ...any) *VerifyError {
	return &VerifyError{Diag: Diagnostic{
		Category: cat,
		Addr:     addr,
		Entry:    entry,
		Message:  fmt.Sprintf(format, args...),
	}}
}

func wrapVerifyError(cat Category, addr uint32, entry int, err error, format string, args ...any) *VerifyError {
	ve := newVerifyError(cat, addr, entry, format, args...)
	ve.Err = err
	return ve
}

// IsOrderViolation reports whether err is a VerifyError in the
// OrderViolation category.
func IsOrderViolation(err error) bool {
	var e *VerifyError
	if errors.As(err, &e) {
		return e.Diag.Category == OrderViolation
	}
	return false
}

// IsExtentViolation reports whether err is a VerifyError in the
// ExtentViolation category.
func IsExtentViolation(err error) bool {
	var e *VerifyError
	if errors.As(err, &e) {
		return e.Diag.Category == ExtentViolation
	}
	return false
}

// CategoryOf returns the Category of err if it is a VerifyError, or false
// as the second result otherwise.
func CategoryOf(err error) (Category, bool) {
	var e *VerifyError
	if errors.As(err, &e) {
		return e.Diag.Category, true
	}
	return 0, false
}
