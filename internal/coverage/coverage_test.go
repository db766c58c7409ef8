package coverage

import "testing"

func TestCoverRespectsQlimit(t *testing.T) {
	m := New(10)
	m.Cover(3, 40, 30)
	m.Cover(4, 20, 30)
	if got := m.CoverageAt(3); got != 1 {
		t.Errorf("CoverageAt(3) = %d, want 1", got)
	}
	if got := m.CoverageAt(4); got != 0 {
		t.Errorf("CoverageAt(4) = %d, want 0 (quality below qlimit)", got)
	}
}

func TestMapFastQPrependsNewestFirst(t *testing.T) {
	m := New(10)
	m.MapFastQ(5, 100, false, 0)
	m.MapFastQ(5, 200, false, 0)
	m.MapFastQ(5, 300, true, 1)

	refs := m.BackRefsAt(5)
	if len(refs) != 3 {
		t.Fatalf("BackRefsAt(5) has %d entries, want 3", len(refs))
	}
	if refs[0].ReadOffset != 300 || refs[1].ReadOffset != 200 || refs[2].ReadOffset != 100 {
		t.Errorf("BackRefsAt(5) = %+v, want newest-first order [300 200 100]", refs)
	}
	if refs[0].Indel != 1 || !refs[0].Reversed {
		t.Errorf("newest back-ref = %+v, want Indel=1 Reversed=true", refs[0])
	}
}

func TestAddInsertAndInsertCounts(t *testing.T) {
	m := New(10)
	m.AddInsert(7)
	m.AddInsert(7)
	m.AddInsert(8)

	counts := m.InsertCounts()
	if counts[7] != 2 || counts[8] != 1 {
		t.Errorf("InsertCounts() = %v, want {7:2, 8:1}", counts)
	}
}

func TestOutOfRangeAccessesAreNoOps(t *testing.T) {
	m := New(2)
	m.Cover(1000, 40, 30)
	m.MapFastQ(1000, 1, false, 0)
	if got := m.CoverageAt(1000); got != 0 {
		t.Errorf("CoverageAt(out of range) = %d, want 0", got)
	}
	if got := m.BackRefsAt(1000); got != nil {
		t.Errorf("BackRefsAt(out of range) = %v, want nil", got)
	}
}

func TestSnapshotFindsUndercoveredRegion(t *testing.T) {
	// 1-based genome of length 100, with a covered gene flanked by gaps.
	genome := make([]byte, 101)
	for i := range genome {
		genome[i] = 'A'
	}
	m := New(100)
	// Cover positions 1..45 and 56..100 well above threshold; leave 46..55 bare.
	for pos := uint32(1); pos <= 45; pos++ {
		m.Cover(pos, 40, 30)
		m.Cover(pos, 40, 30)
	}
	for pos := uint32(56); pos <= 100; pos++ {
		m.Cover(pos, 40, 30)
		m.Cover(pos, 40, 30)
	}

	s := m.Snapshot(genome)
	if len(s.Unmatched) != 1 {
		t.Fatalf("Snapshot().Unmatched = %+v, want exactly 1 region", s.Unmatched)
	}
	u := s.Unmatched[0]
	if u.Pos != 46 {
		t.Errorf("Unmatched region Pos = %d, want 46", u.Pos)
	}
	if len(u.Left) != flankSize || len(u.Right) != flankSize {
		t.Errorf("Unmatched flank lengths = (%d,%d), want %d each", len(u.Left), len(u.Right), flankSize)
	}
}

func TestSnapshotHistogramTrimsTrailingZeros(t *testing.T) {
	m := New(3)
	m.Cover(1, 40, 30)
	s := m.Snapshot(make([]byte, 4))
	if last := s.Histogram[len(s.Histogram)-1]; last == 0 {
		t.Error("Histogram should be trimmed to its last nonzero bin")
	}
}

func TestCoverageSliceMirrorsCoverCalls(t *testing.T) {
	m := New(5)
	m.Cover(2, 40, 30)
	m.Cover(2, 40, 30)
	m.Cover(4, 40, 30)

	slice := m.CoverageSlice()
	if len(slice) != 6 {
		t.Fatalf("CoverageSlice() length = %d, want 6 (size+1 sentinel)", len(slice))
	}
	if slice[2] != 2 {
		t.Errorf("CoverageSlice()[2] = %d, want 2", slice[2])
	}
	if slice[4] != 1 {
		t.Errorf("CoverageSlice()[4] = %d, want 1", slice[4])
	}
	if slice[3] != 0 {
		t.Errorf("CoverageSlice()[3] = %d, want 0 (uncovered)", slice[3])
	}
}
