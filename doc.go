// Package wtverify is an offline (or online) integrity checker for a
// single B-tree file: it reads every page once, proves the file is
// internally consistent — structurally, syntactically, and semantically
// — and never writes to it.
//
// Verification walks the tree depth-first from the descriptor page,
// validating each page's on-disk format and the cross-page invariants
// that only show up when a parent and child are compared together
// (levels, record counts, key boundaries), while a fragment-coverage
// bitmap proves every byte of the file belongs to exactly one page.
//
// Basic usage:
//
//	src, err := cache.Open("/path/to/file.db", wtverify.DefaultAllocSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	report, err := wtverify.Verify(context.Background(), src, wtverify.Params{
//	    RootAddr: rootAddr,
//	    RootSize: rootSize,
//	}, nil)
//	if err != nil {
//	    for _, d := range report.Diagnostics {
//	        fmt.Println(d)
//	    }
//	    log.Fatal(err)
//	}
package wtverify
