// Depth-plot rendering: an optional PNG sketch of per-position coverage
// depth across the reference, binned, with a dashed line at the mean of the
// binned depths. Grounded on
// erunyan6-Lab_Buddy's tools/fastqc_mimic/go_num_funcs.go, which builds the
// same kind of plotter.XYs line plot over a binned histogram and overlays
// a stat.Mean/stat.StdDev-derived curve; this is the "optional
// coverage-depth PNG enrichment" DESIGN.md names as gonum/plot's home in
// this codebase.
package report

import (
	"image/color"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DepthSample is one binned (position, mean depth) point for the plot.
type DepthSample struct {
	Pos   uint32
	Depth float64
}

// BinDepth downsamples a dense per-position coverage slice (index = genomic
// position, value = coverage) into at most maxBins bins of averaged depth,
// so a multi-megabase genome still renders a plot of reasonable size.
func BinDepth(coverage []uint32, maxBins int) []DepthSample {
	if len(coverage) == 0 || maxBins <= 0 {
		return nil
	}
	binWidth := (len(coverage) + maxBins - 1) / maxBins
	if binWidth < 1 {
		binWidth = 1
	}
	out := make([]DepthSample, 0, maxBins+1)
	for start := 0; start < len(coverage); start += binWidth {
		end := start + binWidth
		if end > len(coverage) {
			end = len(coverage)
		}
		var sum float64
		for _, c := range coverage[start:end] {
			sum += float64(c)
		}
		out = append(out, DepthSample{
			Pos:   uint32(start + (end-start)/2),
			Depth: sum / float64(end-start),
		})
	}
	return out
}

// RenderDepthPlotPNG draws a coverage-depth-vs-position line plot and a
// horizontal mean line (stat.Mean over the binned depths) to path as a PNG.
func RenderDepthPlotPNG(samples []DepthSample, path string) error {
	p := plot.New()
	p.Title.Text = "Coverage Depth"
	p.X.Label.Text = "Reference Position"
	p.Y.Label.Text = "Mean Depth"

	depths := make([]float64, len(samples))
	points := make(plotter.XYs, len(samples))
	for i, s := range samples {
		points[i].X = float64(s.Pos)
		points[i].Y = s.Depth
		depths[i] = s.Depth
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return err
	}
	line.LineStyle.Color = color.RGBA{R: 40, G: 120, B: 200, A: 255}
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("depth", line)
	p.Legend.Top = true

	if len(depths) > 0 {
		mean := stat.Mean(depths, nil)
		meanLine, err := plotter.NewLine(plotter.XYs{
			{X: points[0].X, Y: mean},
			{X: points[len(points)-1].X, Y: mean},
		})
		if err == nil {
			meanLine.LineStyle.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}
			meanLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(meanLine)
			p.Legend.Add("mean", meanLine)
		}
	}

	return p.Save(8*vg.Inch, 3*vg.Inch, path)
}
