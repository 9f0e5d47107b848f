// Command wtverify checks a single B-tree file for internal consistency
// and reports the first offending page, entry, or fragment range it
// finds. No repo in the retrieval pack reaches for a CLI framework
// (cobra/pflag/urfave) for a storage-engine-shaped tool; this follows
// their plain stdlib-flag precedent instead (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/wtbtree/wtverify"
	"github.com/wtbtree/wtverify/cache"
)

func main() {
	var (
		allocSize = flag.Uint("alloc-size", uint(wtverify.DefaultAllocSize), "minimum file allocation unit in bytes")
		intlMin   = flag.Uint("intl-min", 0, "expected minimum internal page size")
		intlMax   = flag.Uint("intl-max", 0, "expected maximum internal page size")
		leafMin   = flag.Uint("leaf-min", 0, "expected minimum leaf page size")
		leafMax   = flag.Uint("leaf-max", 0, "expected maximum leaf page size")
		fixedLen  = flag.Uint("fixed-len", 0, "fixed record length for column-fixed trees, 0 if none")
		rootAddr  = flag.Uint("root-addr", 0, "fragment address of the tree root")
		rootSize  = flag.Uint("root-size", 0, "byte size of the tree root page")
		dump      = flag.Bool("dump", false, "dump each visited page to stderr while verifying")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	src, err := cache.Open(path, uint32(*allocSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	defer src.Close()

	params := wtverify.Params{
		IntlMin:  uint32(*intlMin),
		IntlMax:  uint32(*intlMax),
		LeafMin:  uint32(*leafMin),
		LeafMax:  uint32(*leafMax),
		FixedLen: uint32(*fixedLen),
		RootAddr: uint32(*rootAddr),
		RootSize: uint32(*rootSize),
		Target:   path,
	}

	progress := func(target string, count int) {
		fmt.Fprintf(os.Stderr, "%s: verified %d pages\n", target, count)
	}

	var report *wtverify.Report
	if *dump {
		report, err = wtverify.VerifyDump(context.Background(), src, params, progress, os.Stderr)
	} else {
		report, err = wtverify.Verify(context.Background(), src, params, progress)
	}

	if report != nil {
		for _, d := range report.Diagnostics {
			fmt.Fprintln(os.Stderr, d)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: FAILED: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("%s: OK, %d pages, %d/%d fragments covered\n", path, report.PagesVerified, report.FragmentsCovered, report.FragmentsTotal)
}
