// Package coverage implements the per-locus coverage accumulator (spec §3,
// §4.3): a coverage counter and a back-reference list per reference
// position, plus the coverage-histogram/undercovered-region summary used by
// the report and by variant clustering.
package coverage

// BackRef points at a read by its source file offset rather than by object
// identity (spec §9: "the coverage map's back-references point to source
// reads by file offset... lookup materializes the read on demand"). Indel
// follows spec §3's encoding: 0 = none, +n = read has an insert after its
// nth base, -n = read has a delete at its nth base.
type BackRef struct {
	ReadOffset int64
	Reversed   bool
	Indel      int32
}

type locus struct {
	coverage uint32
	refs     []BackRef
}

// Map is the coverage accumulator for an entire reference genome, indexed
// 1-based to match refgenome.Genome.
type Map struct {
	loci         []locus
	insertCounts map[uint32]uint32
}

// New allocates a Map sized for a genome of length size+1 (including the
// sentinel at index 0).
func New(size uint32) *Map {
	return &Map{
		loci:         make([]locus, size+1),
		insertCounts: make(map[uint32]uint32),
	}
}

// Cover increments the coverage counter at pos iff quality > qlimit (spec
// invariant 1).
func (m *Map) Cover(pos uint32, quality int, qlimit int) {
	if int(pos) >= len(m.loci) {
		return
	}
	if quality > qlimit {
		m.loci[pos].coverage++
	}
}

// MapFastQ prepends a back-reference at pos, preserving reverse-chronological
// (newest-first) order as required by spec §5's ordering invariant.
func (m *Map) MapFastQ(pos uint32, readOffset int64, reversed bool, indel int32) {
	if int(pos) >= len(m.loci) {
		return
	}
	ref := BackRef{ReadOffset: readOffset, Reversed: reversed, Indel: indel}
	m.loci[pos].refs = append([]BackRef{ref}, m.loci[pos].refs...)
}

// CoverageAt returns the coverage counter at pos.
func (m *Map) CoverageAt(pos uint32) uint32 {
	if int(pos) >= len(m.loci) {
		return 0
	}
	return m.loci[pos].coverage
}

// BackRefsAt returns the (newest-first) back-reference list at pos.
func (m *Map) BackRefsAt(pos uint32) []BackRef {
	if int(pos) >= len(m.loci) {
		return nil
	}
	return m.loci[pos].refs
}

// AddInsert records one more read supporting an insertion at pos.
func (m *Map) AddInsert(pos uint32) {
	m.insertCounts[pos]++
}

// InsertCounts returns the full insertion-hotspot map.
func (m *Map) InsertCounts() map[uint32]uint32 {
	return m.insertCounts
}

// Len returns the number of loci the map covers (genome size + 1).
func (m *Map) Len() int { return len(m.loci) }

// CoverageSlice returns a dense copy of the per-position coverage counters,
// indexed identically to the map itself (index 0 is the sentinel
// position). Used by the optional depth-plot renderer, which needs a flat
// slice rather than per-position lookups.
func (m *Map) CoverageSlice() []uint32 {
	out := make([]uint32, len(m.loci))
	for i, l := range m.loci {
		out[i] = l.coverage
	}
	return out
}

// Unmatched describes one undercovered region flanked by at least 40 covered
// bases on both sides (spec §4.3).
type Unmatched struct {
	Left, UnmatchedSeq, Right []byte
	Pos                       uint32
}

// Position implements cluster.Item.
func (u Unmatched) Position() uint32 { return u.Pos }

// Summary is the result of scanning the full coverage map (spec §4.3's
// printCoverage): a trimmed coverage histogram, total depth, undercovered
// count, and the list of undercovered regions suitable for clustering.
type Summary struct {
	Histogram    []uint64
	TotalDepth   uint64
	Undercovered uint64
	Unmatched    []Unmatched
}

const undercoveredThreshold = 2
const flankSize = 40

// Snapshot scans the full map to build a Summary. genome must be the same
// 1-based backing array the map was sized from.
func (m *Map) Snapshot(genome []byte) Summary {
	var s Summary
	histo := make([]uint64, 65536)

	wasNul := true
	var prevNulPos uint32

	for pos := 0; pos < len(m.loci); pos++ {
		cov := m.loci[pos].coverage
		noCov := cov < undercoveredThreshold
		if int(cov) < len(histo) {
			histo[cov]++
		}
		s.TotalDepth += uint64(cov)
		if noCov {
			s.Undercovered++
		}

		if !noCov && wasNul {
			if prevNulPos > flankSize && uint32(pos)+flankSize < uint32(len(genome)) {
				s.Unmatched = append(s.Unmatched, Unmatched{
					Left:         genome[prevNulPos-flankSize : prevNulPos],
					UnmatchedSeq: genome[prevNulPos:pos],
					Right:        genome[uint32(pos) : uint32(pos)+flankSize],
					Pos:          prevNulPos,
				})
			}
			wasNul = false
		} else if noCov && !wasNul {
			wasNul = true
			prevNulPos = uint32(pos)
		}
	}

	// Trim the all-zero tail, as the original program's reverse scan does,
	// so the histogram array ends at the last nonzero bin.
	last := 0
	for i, c := range histo {
		if c != 0 {
			last = i
		}
	}
	s.Histogram = histo[:last+1]
	return s
}
