package variant

import (
	"bytes"
	"testing"

	"antonie/internal/coverage"
)

// buildLinearRef returns a 1-based reference of all 'A' bases, length n+1.
func buildLinearRef(n int) []byte {
	ref := make([]byte, n+1)
	for i := range ref {
		ref[i] = 'A'
	}
	return ref
}

func TestRecordExactMatchFillsQualityTallyAndCoverage(t *testing.T) {
	ref := buildLinearRef(100)
	cov := coverage.New(100)
	acc := New(50)

	seq := ref[1:51]
	qual := make([]byte, 50)
	for i := range qual {
		qual[i] = 40
	}
	acc.RecordExactMatch(cov, 1, 0, seq, qual, false, 30)

	correct, incorrect := acc.QualityTally(40)
	if correct != 50 || incorrect != 0 {
		t.Errorf("QualityTally(40) = (%d,%d), want (50,0)", correct, incorrect)
	}
	if cov.CoverageAt(1) != 1 || cov.CoverageAt(50) != 1 {
		t.Errorf("coverage not recorded across the matched span")
	}
}

// TestDNADiffWeightedMismatchRecordsLocusStats is the S2 scenario from
// spec §8: a single substitution at quality 40 is recorded as a locus
// sample and does not touch the insertion/indel paths.
func TestDNADiffWeightedMismatchRecordsLocusStats(t *testing.T) {
	ref := buildLinearRef(100)
	cov := coverage.New(100)
	acc := New(50)

	seq := make([]byte, 50)
	copy(seq, ref[1:51])
	seq[24] = 'C' // mismatch at read position 25 (1-based in spec language)
	qual := make([]byte, 50)
	for i := range qual {
		qual[i] = 40
	}

	_, err := acc.DNADiff(cov, 1, 0, seq, qual, false, 30, ref[1:51])
	if err != nil {
		t.Fatalf("DNADiff: %v", err)
	}

	correct, incorrect := acc.QualityTally(40)
	if incorrect != 1 {
		t.Errorf("QualityTally(40).incorrect = %d, want 1", incorrect)
	}
	if correct != 49 {
		t.Errorf("QualityTally(40).correct = %d, want 49", correct)
	}

	samples := acc.LocusStats(25)
	if len(samples) != 1 {
		t.Fatalf("LocusStats(25) = %+v, want exactly 1 sample", samples)
	}
	if samples[0].Base != 'C' {
		t.Errorf("sample base = %q, want 'C'", samples[0].Base)
	}
	// Invariant 3: the observed base differs from ref[p].
	if samples[0].Base == ref[25] {
		t.Error("locus sample base must differ from the reference base")
	}
}

func TestDNADiffHighMismatchInvokesIndelAndAdjustsCoordinates(t *testing.T) {
	// A cycling ACGT reference (period 4) makes a single inserted base
	// shift every downstream column out of phase, so the weighted mismatch
	// count crosses the >=5 threshold and C6 is consulted (spec §4.7 step
	// 2), exactly as the S3 scenario describes (insertion, trimmed back to
	// the original read length at emit).
	refSnippet := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTA")
	seq := append(append(append([]byte{}, refSnippet[:10]...), 'G'), refSnippet[10:len(refSnippet)-1]...)
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 40
	}

	cov := coverage.New(100)
	acc := New(len(refSnippet))
	result, err := acc.DNADiff(cov, 1, 0, seq, qual, false, 30, refSnippet)
	if err != nil {
		t.Fatalf("DNADiff: %v", err)
	}
	if result.Indel <= 0 {
		t.Fatalf("result.Indel = %d, want a positive insertion offset", result.Indel)
	}
	counts := cov.InsertCounts()
	if len(counts) != 1 {
		t.Fatalf("InsertCounts() = %v, want exactly one hotspot", counts)
	}
}

func TestVariabilityInsufficientDepthScoresZero(t *testing.T) {
	score, _, significant := Variability('A', 1, []Sample{{Base: 'C', Quality: 40, Tail: false}})
	if score != 0 || significant {
		t.Errorf("Variability with depth<20 = (%v,%v), want (0,false)", score, significant)
	}
}

// TestVariabilityStrandFilterRejectsAllForward is property test 7 (spec §8):
// a locus whose samples are all flagged "forward" (non-tail) returns
// variability score 0 regardless of depth.
func TestVariabilityStrandFilterRejectsAllForward(t *testing.T) {
	samples := make([]Sample, 0, 30)
	for i := 0; i < 30; i++ {
		samples = append(samples, Sample{Base: 'C', Quality: 40, Tail: false})
	}
	score, frac, significant := Variability('A', 30, samples)
	if score != 0 || significant {
		t.Errorf("Variability(all-forward) = (%v,%v), want (0,false)", score, significant)
	}
	if frac != 0 {
		t.Errorf("tailFraction = %v, want 0", frac)
	}
}

// TestVariabilitySignificantLocus is the S2 scenario: 50 reference-matching
// observations and 50 mismatching observations at a locus yields a
// variability score of 100*50/100 = 50, which is significant (>=20).
func TestVariabilitySignificantLocus(t *testing.T) {
	samples := make([]Sample, 0, 50)
	for i := 0; i < 50; i++ {
		tail := i%2 == 0
		samples = append(samples, Sample{Base: 'C', Quality: 40, Tail: tail})
	}
	score, _, significant := Variability('A', 50, samples)
	if score != 50 {
		t.Errorf("Variability score = %v, want 50", score)
	}
	if !significant {
		t.Error("score 50 should be significant (>=20)")
	}
}

func TestQualityOutOfRange(t *testing.T) {
	if err := QualityOutOfRange(-1); err == nil {
		t.Error("QualityOutOfRange(-1) = nil, want error")
	}
	if err := QualityOutOfRange(60); err == nil {
		t.Error("QualityOutOfRange(60) = nil, want error")
	}
	if err := QualityOutOfRange(40); err != nil {
		t.Errorf("QualityOutOfRange(40) = %v, want nil", err)
	}
}

func TestKmerStatsZeroForUnobservedOffset(t *testing.T) {
	acc := New(4)
	if got := acc.KmerStats(); got[0] != 0 {
		t.Errorf("KmerStats()[0] = %v, want 0 for an offset with no observations", got[0])
	}
}

func TestKmerStatsSingleRepeatedFourMerHasPositiveCV(t *testing.T) {
	acc := New(8)
	// A read composed only of 'A's puts every count at offset 0 into a
	// single 4-mer bin, a maximally skewed histogram with a nonzero CV.
	acc.RecordReadComposition([]byte("AAAAAAAA"), bytes.Repeat([]byte{40}, 8))
	stats := acc.KmerStats()
	if stats[0] <= 0 {
		t.Errorf("KmerStats()[0] = %v, want > 0 for a single repeated 4-mer", stats[0])
	}
}

func TestRecordReadCompositionTracksReportedQualities(t *testing.T) {
	acc := New(8)
	if err := acc.RecordReadComposition([]byte("GCGCATAT"), bytes.Repeat([]byte{35}, 8)); err != nil {
		t.Fatalf("RecordReadComposition: %v", err)
	}
	if got := acc.QualityCounts()[35]; got != 8 {
		t.Errorf("QualityCounts()[35] = %d, want 8", got)
	}
	if got := acc.GCReadHisto()[4]; got != 1 {
		t.Errorf("GCReadHisto()[4] = %d, want 1 (the read has 4 GC bases)", got)
	}
	if got := acc.TotalBases(); got != 8 {
		t.Errorf("TotalBases() = %d, want 8", got)
	}
	if q := acc.MeanQuality(); q < 34.9 || q > 35.1 {
		t.Errorf("MeanQuality() = %v, want 35 for uniform Phred-35 input", q)
	}
}

func TestRecordReadCompositionRejectsOutOfRangeQuality(t *testing.T) {
	acc := New(4)
	if err := acc.RecordReadComposition([]byte("ACGT"), []byte{40, 40, 40, 77}); err == nil {
		t.Fatal("RecordReadComposition accepted quality 77, want OutOfRange error")
	}
}

func TestRecordReadCompositionTalliesGCAndAT(t *testing.T) {
	acc := New(8)
	acc.RecordReadComposition([]byte("GCGCATAT"), bytes.Repeat([]byte{40}, 8))
	gc := acc.GCMappings()
	at := acc.TAMappings()
	for i := 0; i < 4; i++ {
		if gc[i] != 1 {
			t.Errorf("gcMappings[%d] = %d, want 1", i, gc[i])
		}
	}
	for i := 4; i < 8; i++ {
		if at[i] != 1 {
			t.Errorf("taMappings[%d] = %d, want 1", i, at[i])
		}
	}
}
