// Package cache provides the default PageSource: a memory-mapped,
// read-only view of a B-tree file, adapted from the reference engine's
// mmap package and its hazard-reference page-pinning discipline in
// env.go. Verification never writes, so the mapping is always opened
// read-only regardless of what the underlying file permissions allow.
package cache

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/wtbtree/wtverify"
	"github.com/wtbtree/wtverify/internal/fastmap"
	"github.com/wtbtree/wtverify/mmap"
)

// MmapSource implements wtverify.PageSource over a read-only memory
// mapping of a single file. Pinned addresses are tracked in a
// fastmap.Uint32Map, mirroring the reference engine's dirty-page
// bookkeeping: every PageIn records the address and every release
// clears it, so a test harness can assert the walker never leaks a pin
// past the end of a run by checking pinned.Len() == 0.
type MmapSource struct {
	m         *mmap.Map
	allocSize uint32
	pinned    fastmap.Uint32Map
}

// Open memory-maps path read-only and returns a ready MmapSource.
func Open(path string, allocSize uint32) (*MmapSource, error) {
	m, err := mmap.MapFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &MmapSource{m: m, allocSize: allocSize}, nil
}

// Close unmaps the file.
func (s *MmapSource) Close() error {
	return s.m.Unmap()
}

// FragmentSize implements wtverify.PageSource.
func (s *MmapSource) FragmentSize() uint32 { return s.allocSize }

// FileFragments implements wtverify.PageSource.
func (s *MmapSource) FileFragments() uint32 {
	return uint32(s.m.Size() / int64(s.allocSize))
}

// PinnedCount returns the number of addresses currently pinned; used by
// tests to assert the walker released every page it acquired.
func (s *MmapSource) PinnedCount() int { return s.pinned.Len() }

var pinToken int

// PageIn implements wtverify.PageSource over the memory-mapped bytes.
func (s *MmapSource) PageIn(ctx context.Context, addr, size uint32) (*wtverify.Page, func(), error) {
	start := int64(addr) * int64(s.allocSize)
	end := start + int64(size)
	data := s.m.Data()
	if start < 0 || end > int64(len(data)) {
		return nil, nil, fmt.Errorf("cache: page at addr %d size %d lies outside the mapped file", addr, size)
	}
	page, err := wtverify.NewPage(addr, size, data[start:end])
	if err != nil {
		return nil, nil, err
	}
	s.pinned.Set(addr, unsafe.Pointer(&pinToken))
	release := func() { s.pinned.Delete(addr) }
	return page, release, nil
}
