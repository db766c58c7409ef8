package refgenome

import (
	"strings"
	"testing"
)

func TestLoadBasic(t *testing.T) {
	const fasta = ">chr1 test reference\nACGTACGT\nNNACGT\n"
	g, err := Load(strings.NewReader(fasta))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if g.Name != "chr1" {
		t.Errorf("Name = %q, want %q", g.Name, "chr1")
	}
	if got, want := g.Size(), uint32(14); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	if g.Base(1) != 'A' {
		t.Errorf("Base(1) = %c, want A", g.Base(1))
	}
	if g.Base(0) != '*' {
		t.Errorf("Base(0) = %c, want sentinel '*'", g.Base(0))
	}
}

func TestLoadOnlyFirstRecord(t *testing.T) {
	const fasta = ">first\nACGT\n>second\nTTTT\n"
	g, err := Load(strings.NewReader(fasta))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if g.Name != "first" {
		t.Errorf("Name = %q, want %q", g.Name, "first")
	}
	if got, want := g.Size(), uint32(4); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestLoadRejectsMissingHeader(t *testing.T) {
	if _, err := Load(strings.NewReader("ACGT\n")); err == nil {
		t.Error("expected error for missing '>' header")
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Error("expected error for empty reference")
	}
}

func TestSnippetClampsToEnd(t *testing.T) {
	g, err := Load(strings.NewReader(">chr1\nACGTACGT\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := string(g.Snippet(6, 100)); got != "CGT" {
		t.Errorf("Snippet(6,100) = %q, want %q", got, "CGT")
	}
	if got := g.Snippet(100, 200); got != nil {
		t.Errorf("Snippet out of range = %v, want nil", got)
	}
}

func TestComposition(t *testing.T) {
	g, err := Load(strings.NewReader(">chr1\nAACCGGTT\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	c := g.Composition()
	if c.A != 2 || c.C != 2 || c.G != 2 || c.T != 2 {
		t.Errorf("Composition = %+v, want 2 of each", c)
	}
	if got, want := c.GCRatio(), 0.5; got != want {
		t.Errorf("GCRatio() = %v, want %v", got, want)
	}
}

func TestCompositionEmptyGenomeHasZeroRatio(t *testing.T) {
	var c Composition
	if got := c.GCRatio(); got != 0 {
		t.Errorf("GCRatio() on empty composition = %v, want 0", got)
	}
}

func TestGCCountHistoBinsByGCCount(t *testing.T) {
	// A uniform half-GC genome: every 4-base window lands in bin 2, so
	// after the /4 overlap compensation every other bin stays empty.
	g, err := Load(strings.NewReader(">chr1\n" + strings.Repeat("ACGT", 25) + "\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	histo := g.GCCountHisto(4)
	if len(histo) != 5 {
		t.Fatalf("GCCountHisto(4) has %d bins, want 5 (GC counts 0..4)", len(histo))
	}
	if histo[2] == 0 {
		t.Errorf("bin 2 = 0, want every half-GC window tallied there: %v", histo)
	}
	for _, bin := range []int{0, 4} {
		if histo[bin] != 0 {
			t.Errorf("bin %d = %d, want 0 for a uniform half-GC genome: %v", bin, histo[bin], histo)
		}
	}
}

func TestGCCountHistoCompensatesOverlappingStride(t *testing.T) {
	// The window slides by windowSize/4, visiting each region 4 times; the
	// final /4 division must bring the total back to roughly one sample per
	// window length.
	windowSize := 8
	g, err := Load(strings.NewReader(">chr1\n" + strings.Repeat("GGGGGGGG", 10) + "\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	histo := g.GCCountHisto(windowSize)
	var total uint64
	for _, c := range histo {
		total += c
	}
	want := uint64(10) // 80 bases / window 8
	if total < want-1 || total > want+1 {
		t.Errorf("GCCountHisto total = %d, want ~%d samples after overlap compensation", total, want)
	}
	if histo[windowSize] == 0 {
		t.Errorf("bin %d = 0, want the all-GC windows tallied in the top bin: %v", windowSize, histo)
	}
}

func TestGCCountHistoEmptyGenomeReturnsNil(t *testing.T) {
	g, err := Load(strings.NewReader(">chr1\n\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := g.GCCountHisto(4); got != nil {
		t.Errorf("GCCountHisto on an empty genome = %v, want nil", got)
	}
}
