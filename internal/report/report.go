// Package report renders the run's data.js output (spec §6): a sequence of
// named JavaScript variable declarations consumed by the bundled HTML
// viewer. Series are emitted as array-of-pairs literals; region entries as
// object literals. Writing is plain buffered text, matching the original
// program's direct stdio-based data.js emission — there is no third-party
// templating engine in the retrieval pack suited to this one-shot,
// fixed-shape output, so text/template would be pure ceremony here.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"antonie/internal/annotations"
	"antonie/internal/logging"
)

// Series is a named array-of-pairs ([x, y], ...) variable.
type Series struct {
	Name   string
	Points [][2]float64
}

// Region is one `region[i]` object literal: a clustered variable locus,
// undercovered span or insertion hotspot, annotated with any overlapping
// gene features. Depth is the [position, coverage] series across the
// region's window; Picture is the ASCII read pileup over the same window.
type Region struct {
	Name        string
	Pos         uint32
	Depth       [][2]float64
	Picture     string
	Annotations []annotations.Feature
}

// Writer accumulates report data and serializes it as data.js.
type Writer struct {
	w       *bufio.Writer
	series  []Series
	regions []Region
}

// New wraps w for data.js output.
func New(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// AddSeries queues one array-of-pairs variable for emission.
func (rw *Writer) AddSeries(name string, points [][2]float64) {
	rw.series = append(rw.series, Series{Name: name, Points: points})
}

// AddRegion queues one region[i] object.
func (rw *Writer) AddRegion(r Region) {
	rw.regions = append(rw.regions, r)
}

// HistogramSeries turns a dense per-quality or per-offset histogram
// (index = x, value = y) into a Series, skipping no entries (the report
// viewer expects a fully dense x domain for these).
func HistogramSeries(name string, counts []uint64) Series {
	points := make([][2]float64, len(counts))
	for i, c := range counts {
		points[i] = [2]float64{float64(i), float64(c)}
	}
	return Series{Name: name, Points: points}
}

// SparseSeries turns a position→count map into a Series sorted by x.
func SparseSeries(name string, counts map[uint32]uint32) Series {
	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	points := make([][2]float64, len(keys))
	for i, k := range keys {
		points[i] = [2]float64{float64(k), float64(counts[k])}
	}
	return Series{Name: name, Points: points}
}

func writeNumber(w *bufio.Writer, f float64) {
	if f == float64(int64(f)) {
		fmt.Fprintf(w, "%d", int64(f))
	} else {
		fmt.Fprintf(w, "%g", f)
	}
}

func writeSeries(w *bufio.Writer, s Series) {
	fmt.Fprintf(w, "var %s = [", s.Name)
	for i, p := range s.Points {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('[')
		writeNumber(w, p[0])
		w.WriteByte(',')
		writeNumber(w, p[1])
		w.WriteByte(']')
	}
	w.WriteString("];\n")
}

func jsString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			out = append(out, '\\', '\\')
		case '"':
			out = append(out, '\\', '"')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, s[i])
		}
	}
	out = append(out, '"')
	return string(out)
}

func writeRegions(w *bufio.Writer, regions []Region) {
	w.WriteString("var region = [")
	for i, r := range regions {
		if i > 0 {
			w.WriteByte(',')
		}
		fmt.Fprintf(w, "{name:%s,pos:%d,depth:[", jsString(r.Name), r.Pos)
		for j, p := range r.Depth {
			if j > 0 {
				w.WriteByte(',')
			}
			w.WriteByte('[')
			writeNumber(w, p[0])
			w.WriteByte(',')
			writeNumber(w, p[1])
			w.WriteByte(']')
		}
		fmt.Fprintf(w, "],picture:%s,annotations:[", jsString(r.Picture))
		for j, a := range r.Annotations {
			if j > 0 {
				w.WriteByte(',')
			}
			fmt.Fprintf(w, "{tag:%s,start:%d,stop:%d,name:%s}",
				jsString(a.Tag), a.StartPos, a.StopPos, jsString(a.Name))
		}
		w.WriteString("]}")
	}
	w.WriteString("];\n")
}

// Flush writes every queued series and region, then the log and genome
// GC ratio scalars, and flushes the underlying writer. log is the run's
// accumulated logging.Log, embedded verbatim as antonieLog (spec §9
// "Global logging"). Call this once, after every series/region has been
// queued.
func (rw *Writer) Flush(log *logging.Log, genomeGCRatio float64) error {
	for _, s := range rw.series {
		writeSeries(rw.w, s)
	}
	writeRegions(rw.w, rw.regions)
	fmt.Fprintf(rw.w, "var antonieLog = \"%s\";\n", log.JSEscaped())
	fmt.Fprintf(rw.w, "var genomeGCRatio = %g;\n", genomeGCRatio)
	return rw.w.Flush()
}
