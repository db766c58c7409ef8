// Package variant implements the variant-candidate and quality-recalibration
// accumulator (spec §3 Locus stats / Quality tally / Per-read-offset
// tallies, §4.7, §4.8): DNADiff's weighted mismatch walk, the per-quality
// correct/incorrect tally, per-locus allele samples, and the variability
// score used to flag candidate variants.
package variant

import (
	"math"

	"antonie/internal/coverage"
	"antonie/internal/gverrors"
	"antonie/internal/indel"
	"antonie/internal/qstat"
)

// Sample is one observed mismatch at a locus: the base the read reported,
// its quality, and whether it fell in the distal ("tail") half of the read
// after orientation normalization (spec §3 Locus stats, §4.7 rationale).
type Sample struct {
	Base    byte
	Quality byte
	Tail    bool
}

// tally holds a correct/incorrect pair of observation counts.
type tally struct {
	Correct, Incorrect uint64
}

// Accumulator is the per-run variant and recalibration accumulator (C7). It
// is created once per run, for the reference genome only, and written
// throughout the exact and fuzzy passes.
type Accumulator struct {
	readLen int

	qualityTally [256]tally

	correctMappings []uint64
	wrongMappings   []uint64
	gcMappings      []uint64
	taMappings      []uint64
	kmerMappings    [][256]uint32

	// Reported-quality accounting over every streamed read: the raw
	// per-score histogram (qhisto), the per-read GC-count histogram
	// (gcreadhisto), and the global plus per-offset error-probability
	// estimators behind the qualities/qlo/qhi recalibration curve.
	qualityCounts [256]uint64
	gcReadHisto   []uint64
	errGlobal     qstat.Estimator
	errPerOffset  []qstat.Estimator

	locusStats map[uint32][]Sample
}

// New allocates an Accumulator sized for reads of length readLen.
func New(readLen int) *Accumulator {
	return &Accumulator{
		readLen:         readLen,
		correctMappings: make([]uint64, readLen),
		wrongMappings:   make([]uint64, readLen),
		gcMappings:      make([]uint64, readLen),
		taMappings:      make([]uint64, readLen),
		kmerMappings:    make([][256]uint32, readLen),
		gcReadHisto:     make([]uint64, readLen+1),
		errPerOffset:    make([]qstat.Estimator, readLen),
		locusStats:      make(map[uint32][]Sample),
	}
}

// fourMer packs up to 4 bases starting at offset into a 0..255 key the same
// way the original program's kmerMapper does (2 bits per base; a non-ACGT
// base still advances the shift and contributes zero bits, like 'A').
func fourMer(seq []byte, offset int) uint32 {
	var ret uint32
	n := offset + 4
	if n > len(seq) {
		n = len(seq)
	}
	for i := offset; i < n; i++ {
		ret <<= 2
		switch seq[i] {
		case 'A':
			ret |= 0
		case 'C':
			ret |= 1
		case 'G':
			ret |= 2
		case 'T':
			ret |= 3
		}
	}
	return ret & 0xFF
}

// RecordReadComposition tallies per-offset GC/AT base composition, the
// 4-mer histogram, the per-read GC-count histogram and the reported-quality
// statistics for every read seen, independent of whether it ultimately maps
// (spec "Per-read-offset tallies"; the original program accumulates these
// before checking whether a read contains 'N' or has the wrong length).
// A quality outside 0..59 is a programming error and reported as
// OutOfRange (spec §7).
func (a *Accumulator) RecordReadComposition(seq, qual []byte) error {
	gcCount := 0
	for i, c := range seq {
		if c == 'G' || c == 'C' {
			gcCount++
		}
		if i >= len(a.gcMappings) {
			continue
		}
		if c == 'G' || c == 'C' {
			a.gcMappings[i]++
		} else {
			a.taMappings[i]++
		}
		if len(seq)-i > 4 {
			a.kmerMappings[i][fourMer(seq, i)]++
		}
	}
	if gcCount >= len(a.gcReadHisto) {
		gcCount = len(a.gcReadHisto) - 1
	}
	a.gcReadHisto[gcCount]++

	for i, q := range qual {
		if err := QualityOutOfRange(int(q)); err != nil {
			return err
		}
		a.qualityCounts[q]++
		e := qstat.QToErr(int(q))
		a.errGlobal.Add(e)
		if i < len(a.errPerOffset) {
			a.errPerOffset[i].Add(e)
		}
	}
	return nil
}

// RecordExactMatch attributes a full, mismatch-free exact match to the
// coverage map, the quality tally and the per-offset correct-mapping
// tallies. See DESIGN.md's resolution of spec §9 Open Question 2: unlike
// the original program (which only bulk-overwrites correctMappings with the
// total exact-match count after the fact, masking per-cycle detail), this
// rewrite keeps per-offset accounting for exact matches too.
func (a *Accumulator) RecordExactMatch(cov *coverage.Map, pos uint32, readOffset int64, seq, qual []byte, reversed bool, qlimit int) {
	cov.MapFastQ(pos, readOffset, reversed, 0)
	for i := range seq {
		if i >= len(qual) {
			break
		}
		q := qual[i]
		cov.Cover(pos+uint32(i), int(q), qlimit)
		a.qualityTally[q].Correct++
		statsOffset := i
		if reversed {
			statsOffset = len(seq) - 1 - i
		}
		if statsOffset < len(a.correctMappings) {
			a.correctMappings[statsOffset]++
		}
	}
}

// DNAResult is the outcome of one DNADiff call.
type DNAResult struct {
	// Seq and Qual are the (possibly indel-adjusted) read bytes actually
	// compared column-by-column against the reference, for use by SAM
	// output and the ASCII pileup renderer.
	Seq, Qual []byte
	// Indel is 0 (no indel), +n (read has an insertion after its nth base)
	// or -n (read has a deletion at its nth base), as spec §3 encodes it.
	Indel int32
}

// DNADiff walks read vs. ref[pos:pos+len(read)], recording coverage,
// quality-tally and locus-stats observations (spec §4.7). qual holds
// already offset-corrected Phred scores (one byte per base). ref must be at
// least len(read) bytes; pos is returned unmodified to the coverage map
// back-references via readOffset (the read's source-file offset).
func (a *Accumulator) DNADiff(cov *coverage.Map, pos uint32, readOffset int64, seq, qual []byte, reversed bool, qlimit int, ref []byte) (DNAResult, error) {
	n := len(seq)
	if len(ref) < n {
		n = len(ref)
	}

	weighted := 0.0
	for i := 0; i < n; i++ {
		if seq[i] != ref[i] {
			if int(qual[i]) > qlimit {
				weighted++
			} else {
				weighted += 0.5
			}
		}
	}

	indelOffset := int32(0)
	if weighted < 5 {
		cov.MapFastQ(pos, readOffset, reversed, 0)
	} else {
		refWindow := ref
		if len(refWindow) > len(seq) {
			refWindow = refWindow[:len(seq)]
		}
		indelOffset = indel.Classify(refWindow, seq)
		if indelOffset != 0 {
			cov.MapFastQ(pos, readOffset, reversed, indelOffset)
			weighted = 1
			if indelOffset > 0 {
				i := int(indelOffset)
				if i >= 0 && i < len(seq) {
					seq = append(append([]byte{}, seq[:i]...), seq[i+1:]...)
					qual = append(append([]byte{}, qual[:i]...), qual[i+1:]...)
				}
				cov.AddInsert(pos + uint32(indelOffset))
			} else {
				i := int(-indelOffset)
				if i >= 0 && i <= len(seq) {
					seq = insertAt(seq, i, 'X')
					qual = insertAt(qual, i, 40)
				}
			}
		}
	}

	n = len(seq)
	if len(ref) < n {
		n = len(ref)
	}
	for i := 0; i < n; i++ {
		if i >= len(qual) {
			break
		}
		q := qual[i]
		readOffsetForStats := i
		if reversed {
			readOffsetForStats = len(seq) - 1 - i
		}
		if seq[i] == ref[i] {
			cov.Cover(pos+uint32(i), int(q), qlimit)
			a.qualityTally[q].Correct++
			if readOffsetForStats < len(a.correctMappings) {
				a.correctMappings[readOffsetForStats]++
			}
		} else {
			if int(q) > qlimit && weighted < 5 {
				tail := reversed != (i > len(seq)/2)
				a.locusStats[pos+uint32(i)] = append(a.locusStats[pos+uint32(i)], Sample{
					Base:    seq[i],
					Quality: q,
					Tail:    tail,
				})
			}
			if weighted < 5 {
				a.qualityTally[q].Incorrect++
				if readOffsetForStats < len(a.wrongMappings) {
					a.wrongMappings[readOffsetForStats]++
				}
			}
		}
	}

	return DNAResult{Seq: seq, Qual: qual, Indel: indelOffset}, nil
}

func insertAt(b []byte, i int, c byte) []byte {
	if i > len(b) {
		i = len(b)
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b[:i]...)
	out = append(out, c)
	out = append(out, b[i:]...)
	return out
}

// QualityTally returns the (correct, incorrect) counts for Phred score q.
func (a *Accumulator) QualityTally(q byte) (correct, incorrect uint64) {
	t := a.qualityTally[q]
	return t.Correct, t.Incorrect
}

// LocusStats returns the observed mismatch samples at pos.
func (a *Accumulator) LocusStats(pos uint32) []Sample {
	return a.locusStats[pos]
}

// LociWithVariants returns every reference position that has at least one
// recorded mismatch sample (spec §3 invariant: "for every reference
// position with at least one observed mismatch").
func (a *Accumulator) LociWithVariants() []uint32 {
	out := make([]uint32, 0, len(a.locusStats))
	for pos := range a.locusStats {
		out = append(out, pos)
	}
	return out
}

// CorrectMappings, WrongMappings, GCMappings, TAMappings expose the
// per-read-offset tallies for report rendering.
func (a *Accumulator) CorrectMappings() []uint64 { return a.correctMappings }
func (a *Accumulator) WrongMappings() []uint64   { return a.wrongMappings }
func (a *Accumulator) GCMappings() []uint64      { return a.gcMappings }
func (a *Accumulator) TAMappings() []uint64      { return a.taMappings }
func (a *Accumulator) KmerMappings() [][256]uint32 { return a.kmerMappings }

// QualityCounts returns the histogram of reported Phred scores across every
// base of every streamed read (the qhisto series).
func (a *Accumulator) QualityCounts() []uint64 { return a.qualityCounts[:] }

// GCReadHisto returns the per-read GC-base-count histogram, bins 0..readLen
// (the gcreadhisto series).
func (a *Accumulator) GCReadHisto() []uint64 { return a.gcReadHisto }

// TotalBases returns the number of base observations streamed through
// RecordReadComposition.
func (a *Accumulator) TotalBases() uint64 { return a.errGlobal.N() }

// GlobalErr returns the run-wide reported-error estimator; MeanQuality is
// its Phred rendering.
func (a *Accumulator) GlobalErr() *qstat.Estimator { return &a.errGlobal }

// MeanQuality returns -10*log10 of the mean reported error probability.
func (a *Accumulator) MeanQuality() float64 { return qstat.QScore(&a.errGlobal) }

// OffsetErr returns the per-read-offset reported-error estimators feeding
// the qualities/qlo/qhi recalibration curve.
func (a *Accumulator) OffsetErr() []qstat.Estimator { return a.errPerOffset }

// KmerStats reports, for every read offset, the coefficient of variation
// (stddev/mean) of that offset's 4-mer histogram (SPEC_FULL.md's kmerstats
// series): a low CV means 4-mers are roughly evenly distributed at that
// cycle, a high CV flags a cycle dominated by a handful of repeated motifs.
func (a *Accumulator) KmerStats() []float64 {
	out := make([]float64, len(a.kmerMappings))
	for i, histo := range a.kmerMappings {
		var sum, sumSq float64
		for _, c := range histo {
			sum += float64(c)
			sumSq += float64(c) * float64(c)
		}
		if sum == 0 {
			continue
		}
		mean := sum / 256
		variance := sumSq/256 - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance) / mean
	}
	return out
}

// OverwriteCorrectMappings sets every per-offset correct-mapping slot to n.
// It reproduces the original program's bulk overwrite (see DESIGN.md, open
// question 2); nothing in the pipeline or the report calls it.
func (a *Accumulator) OverwriteCorrectMappings(n uint64) {
	for i := range a.correctMappings {
		a.correctMappings[i] = n
	}
}

// Variability computes the variability score for a locus (spec §4.8).
// refBase is ref[pos], refCoverage is the matched-read coverage at pos
// (both contribute to the dominant allele's count), and samples is the
// locus's mismatch observations.
func Variability(refBase byte, refCoverage uint32, samples []Sample) (score float64, tailFraction float64, significant bool) {
	var counts [256]int
	counts[refBase] += int(refCoverage)

	tailCount := 0
	for _, s := range samples {
		counts[s.Base]++
		if s.Tail {
			tailCount++
		}
	}

	dom := 0
	total := 0
	for _, c := range counts {
		total += c
		if c > dom {
			dom = c
		}
	}
	nonDom := total - dom

	if dom+nonDom < 20 {
		return 0, 0, false
	}
	if len(samples) == 0 {
		return 0, 0, false
	}
	tailFraction = float64(tailCount) / float64(len(samples))
	if tailFraction < 0.05 || tailFraction > 0.95 {
		return 0, tailFraction, false
	}
	if dom == 0 {
		return 0, tailFraction, false
	}
	score = float64(100 * nonDom / dom)
	return score, tailFraction, score >= 20
}

// QualityOutOfRange reports whether q is outside the 0..59 range the
// error-probability table supports (spec §7 OutOfRange).
func QualityOutOfRange(q int) error {
	if q < 0 || q > 59 {
		return gverrors.New(gverrors.OutOfRange, "quality score outside 0..59")
	}
	return nil
}
