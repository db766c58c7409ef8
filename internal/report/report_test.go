package report

import (
	"bytes"
	"strings"
	"testing"

	"antonie/internal/annotations"
	"antonie/internal/logging"
)

func TestHistogramSeriesIsDenseOverIndex(t *testing.T) {
	s := HistogramSeries("qhisto", []uint64{3, 0, 7})
	want := [][2]float64{{0, 3}, {1, 0}, {2, 7}}
	if len(s.Points) != len(want) {
		t.Fatalf("HistogramSeries points = %v, want %v", s.Points, want)
	}
	for i := range want {
		if s.Points[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, s.Points[i], want[i])
		}
	}
}

func TestSparseSeriesSortsByPosition(t *testing.T) {
	s := SparseSeries("insertCounts", map[uint32]uint32{30: 2, 10: 5})
	want := [][2]float64{{10, 5}, {30, 2}}
	if len(s.Points) != len(want) || s.Points[0] != want[0] || s.Points[1] != want[1] {
		t.Errorf("SparseSeries points = %v, want %v", s.Points, want)
	}
}

func TestFlushRendersSeriesRegionsAndScalars(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.AddSeries("qhisto", [][2]float64{{0, 1}, {1, 2}})
	w.AddRegion(Region{
		Name:  "Variable",
		Pos:   42,
		Depth: [][2]float64{{41, 10}, {42, 12}},
		Annotations: []annotations.Feature{
			{Tag: "gene", StartPos: 40, StopPos: 50, Name: "abc"},
		},
	})

	log := logging.New(nil)
	log.Printf("hello world")

	if err := w.Flush(log, 0.5); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "var qhisto = [[0,1],[1,2]];") {
		t.Errorf("missing qhisto series in output: %q", out)
	}
	if !strings.Contains(out, `name:"Variable"`) {
		t.Errorf("missing region name in output: %q", out)
	}
	if !strings.Contains(out, "depth:[[41,10],[42,12]]") {
		t.Errorf("missing region depth series in output: %q", out)
	}
	if !strings.Contains(out, "var antonieLog = \"hello world") {
		t.Errorf("missing antonieLog scalar in output: %q", out)
	}
	if !strings.Contains(out, "var genomeGCRatio = 0.5;") {
		t.Errorf("missing genomeGCRatio scalar in output: %q", out)
	}
	if !strings.Contains(out, `tag:"gene"`) {
		t.Errorf("missing nested annotation in region: %q", out)
	}
}
