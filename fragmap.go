package wtverify

import "math/bits"

// fragmentMap is a bitset over the file's fragments, one bit per
// minimum-allocation-unit, used to prove every fragment is claimed by
// exactly one page and none is claimed twice. It is adapted from the
// reference engine's spill.Bitmap: word-granular set/test over a
// []uint64, but Add reports a conflict instead of finding a free slot,
// and uncoveredRanges coalesces clear runs instead of returning single
// bits.
type fragmentMap struct {
	words []uint64
	frags uint32
}

// newFragmentMap builds a map sized to cover the given number of
// fragments. The caller has already checked frags against the bitset
// index-type ceiling (see Verify).
func newFragmentMap(frags uint32) *fragmentMap {
	return &fragmentMap{
		words: make([]uint64, (uint64(frags)+63)/64),
		frags: frags,
	}
}

// add marks fragments [addr, addr+count) as covered by one page, or
// returns the first fragment already covered by a previous page.
func (m *fragmentMap) add(addr, count uint32) (conflict uint32, ok bool) {
	end := uint64(addr) + uint64(count)
	if end > uint64(m.frags) {
		return m.frags, false
	}
	for i := uint64(addr); i < end; i++ {
		w, b := i/64, i%64
		if m.words[w]&(1<<b) != 0 {
			return uint32(i), false
		}
	}
	for i := uint64(addr); i < end; i++ {
		w, b := i/64, i%64
		m.words[w] |= 1 << b
	}
	return 0, true
}

// covered reports whether fragment i is claimed.
func (m *fragmentMap) covered(i uint32) bool {
	if i >= m.frags {
		return false
	}
	return m.words[i/64]&(1<<(i%64)) != 0
}

// fragRange is an inclusive-exclusive range of uncovered fragments.
type fragRange struct {
	Start, End uint32 // [Start, End)
}

// uncoveredRanges scans the map and coalesces consecutive clear bits into
// ranges, matching __wt_bt_verify_checkfrag's reporting of single
// fragments versus fragment ranges.
func (m *fragmentMap) uncoveredRanges() []fragRange {
	var ranges []fragRange
	var runStart uint32
	inRun := false
	for i := uint32(0); i < m.frags; i++ {
		if m.covered(i) {
			if inRun {
				ranges = append(ranges, fragRange{runStart, i})
				inRun = false
			}
			continue
		}
		if !inRun {
			runStart = i
			inRun = true
		}
	}
	if inRun {
		ranges = append(ranges, fragRange{runStart, m.frags})
	}
	return ranges
}

// count returns the number of covered fragments using the same
// popcount-over-words approach as spill.Bitmap.Count.
func (m *fragmentMap) count() uint32 {
	var n uint32
	for _, w := range m.words {
		n += uint32(bits.OnesCount64(w))
	}
	return n
}
