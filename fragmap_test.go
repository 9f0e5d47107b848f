package wtverify

import "testing"

func TestFragmentMapAddConflict(t *testing.T) {
	m := newFragmentMap(10)
	if _, ok := m.add(2, 3); !ok {
		t.Fatalf("expected first add to succeed")
	}
	conflict, ok := m.add(4, 2)
	if ok {
		t.Fatalf("expected overlapping add to fail")
	}
	if conflict != 4 {
		t.Errorf("expected conflict at fragment 4, got %d", conflict)
	}
}

func TestFragmentMapAddPastEnd(t *testing.T) {
	m := newFragmentMap(4)
	if _, ok := m.add(2, 4); ok {
		t.Fatalf("expected add extending past the file to fail")
	}
}

func TestFragmentMapUncoveredRangesCoalesce(t *testing.T) {
	m := newFragmentMap(10)
	m.add(0, 2)  // covers 0,1
	m.add(5, 2)  // covers 5,6
	m.add(9, 1)  // covers 9
	ranges := m.uncoveredRanges()
	want := []fragRange{{2, 5}, {7, 9}}
	if len(ranges) != len(want) {
		t.Fatalf("expected %d ranges, got %d: %v", len(want), len(ranges), ranges)
	}
	for i, r := range ranges {
		if r != want[i] {
			t.Errorf("range %d: got %+v, want %+v", i, r, want[i])
		}
	}
}

func TestFragmentMapCount(t *testing.T) {
	m := newFragmentMap(100)
	m.add(0, 10)
	m.add(50, 5)
	if got := m.count(); got != 15 {
		t.Errorf("expected count 15, got %d", got)
	}
}
