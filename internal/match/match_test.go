package match

import (
	"testing"

	"antonie/internal/kmerindex"
)

func TestReverseComplementIsInvolution(t *testing.T) {
	seq := []byte("ACGTTGCAN")
	rc := ReverseComplement(seq)
	rcrc := ReverseComplement(rc)
	if string(rcrc) != string(seq) {
		t.Errorf("ReverseComplement(ReverseComplement(%s)) = %s, want original", seq, rcrc)
	}
}

func TestReverseComplementKnownValue(t *testing.T) {
	if got := string(ReverseComplement([]byte("ACGT"))); got != "ACGT" {
		t.Errorf("ReverseComplement(ACGT) = %s, want ACGT (self-complementary)", got)
	}
	if got := string(ReverseComplement([]byte("AAGG"))); got != "CCTT" {
		t.Errorf("ReverseComplement(AAGG) = %s, want CCTT", got)
	}
}

func TestReverseReversesBytes(t *testing.T) {
	if got := string(Reverse([]byte("IIHH"))); got != "HHII" {
		t.Errorf("Reverse(IIHH) = %s, want HHII", got)
	}
}

func TestExactFindBothForwardMatch(t *testing.T) {
	genome := []byte("*AAACCCGGGTTTAAA")
	idx := kmerindex.Build(genome, 4)
	e := NewExact(idx, 1)

	seq := []byte("CCCG")
	qual := []byte{40, 40, 40, 40}
	r, ok := e.FindBoth(seq, qual)
	if !ok {
		t.Fatal("FindBoth() did not find the forward match")
	}
	if r.Pos != 4 {
		t.Errorf("FindBoth() Pos = %d, want 4", r.Pos)
	}
	if r.Reversed {
		t.Error("FindBoth() should report the forward orientation first")
	}
}

func TestExactFindBothReverseComplementMatch(t *testing.T) {
	genome := []byte("*AAACCCGTATTAAA")
	idx := kmerindex.Build(genome, 4)
	e := NewExact(idx, 1)

	// The genome contains CCCG at position 4 but not its reverse complement
	// CGGG, so the query CGGG only matches through its reverse complement.
	query := ReverseComplement([]byte("CCCG"))
	qual := []byte{40, 40, 40, 40}
	r, ok := e.FindBoth(query, qual)
	if !ok {
		t.Fatal("FindBoth() did not find the reverse-complement match")
	}
	if !r.Reversed {
		t.Error("FindBoth() should report the reverse orientation")
	}
	if r.Pos != 4 {
		t.Errorf("FindBoth() Pos = %d, want 4", r.Pos)
	}
}

func TestExactFindBothNoMatch(t *testing.T) {
	genome := []byte("*AAACCCGGGTTTAAA")
	idx := kmerindex.Build(genome, 4)
	e := NewExact(idx, 1)

	if _, ok := e.FindBoth([]byte("ACGT"), []byte{40, 40, 40, 40}); ok {
		t.Error("FindBoth() should not match a k-mer absent from the genome or its reverse complement")
	}
}

func TestFuzzyMatchExactCandidateScoresZero(t *testing.T) {
	genome := make([]byte, 1)
	genome[0] = '*'
	body := "ACGTACGATCGATCGATCGTACGATCGATGCATCGATCGTAGCATGCATCG"
	genome = append(genome, []byte(body)...)
	idx := kmerindex.Build(genome, 11)

	f := NewFuzzy(idx, genome, 30, 1)
	readStart := 5
	readLen := 36 // (36-3*11)/3 = 1, so interval > 0
	read := append([]byte(nil), genome[readStart:readStart+readLen]...)
	qual := make([]byte, readLen)
	for i := range qual {
		qual[i] = 40
	}

	r, ok := f.Match(read, qual)
	if !ok {
		t.Fatal("Match() did not find the planted exact candidate")
	}
	if r.Pos != uint32(readStart) {
		t.Errorf("Match() Pos = %d, want %d", r.Pos, readStart)
	}
	if r.Score != 0 {
		t.Errorf("Match() Score = %d, want 0 for an exact candidate", r.Score)
	}
}

func TestFuzzyMatchTooShortReadNeverMatches(t *testing.T) {
	genome := []byte("*ACGTACGTACGTACGTACGT")
	idx := kmerindex.Build(genome, 11)
	f := NewFuzzy(idx, genome, 30, 1)

	if _, ok := f.Match([]byte("ACGT"), []byte{40, 40, 40, 40}); ok {
		t.Error("Match() should refuse a read too short for three anchors")
	}
}
