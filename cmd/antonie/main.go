// Command antonie aligns short DNA sequencing reads to a reference genome,
// producing coverage, quality-recalibration and variant-candidate reports
// (see SPEC_FULL.md). Flag parsing follows the long-flag, GNU-style
// convention used across the retrieval pack's CLI tools via
// github.com/spf13/pflag.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"antonie/internal/annotations"
	"antonie/internal/gverrors"
	"antonie/internal/logging"
	"antonie/internal/monitor"
	"antonie/internal/pipeline"
	"antonie/internal/qstat"
	"antonie/internal/report"
	"antonie/internal/variant"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		referencePath   = pflag.String("reference", "", "reference FASTA file (required)")
		fastqPath       = pflag.String("fastq", "", "FASTQ read file, optionally gzip-compressed (required)")
		annotationsPath = pflag.String("annotations", "", "gene annotation CSV")
		excludePath     = pflag.String("exclude", "", "exclusion genome FASTA (e.g. a spike-in control)")
		samPath         = pflag.String("sam-file", "", "SAM alignment output path")
		dataJSPath      = pflag.String("report", "data.js", "data.js report output path")
		unfoundPath     = pflag.String("unfound-file", "unfound.fastq", "path for --unmatched-dump output")
		qualityOffset   = pflag.Int("quality-offset", 33, "FASTQ quality encoding offset")
		beginSnip       = pflag.Int("begin-snip", 0, "bases to trim from the start of every read")
		endSnip         = pflag.Int("end-snip", 0, "bases to trim from the end of every read")
		qlimit          = pflag.Int("qlimit", 30, "quality threshold for coverage/variant accounting")
		duplimit        = pflag.Int("duplimit", 0, "nonzero enables the duplicate filter: reads whose exact sequence has been seen more than 4 times are rejected (0 = off)")
		unmatchedDump   = pflag.Bool("unmatched-dump", false, "write residual unmatched reads to --unfound-file")
		seed            = pflag.Int64("seed", 1, "PRNG seed for tie-break reproducibility")
		workers         = pflag.Int("workers", 1, "run the fuzzy pass's read matching on this many goroutines; coverage/variant writes stay serial (experimental)")
		monitorAddr     = pflag.String("monitor-addr", "", "serve a live-progress WebSocket dashboard on this address (e.g. :8910)")
		monitorRedis    = pflag.String("monitor-redis", "", "also publish progress events to this Redis address")
		depthPNGPath    = pflag.String("depth-png", "", "render a binned coverage-depth plot to this PNG path")
	)
	pflag.Parse()

	if *referencePath == "" || *fastqPath == "" {
		fmt.Fprintln(os.Stderr, "antonie: --reference and --fastq are required")
		pflag.Usage()
		return 2
	}

	log := logging.New(os.Stderr)

	cfg := pipeline.Config{
		ReferencePath:   *referencePath,
		FastqPath:       *fastqPath,
		AnnotationsPath: *annotationsPath,
		ExcludePath:     *excludePath,
		SAMPath:         *samPath,
		UnfoundPath:     *unfoundPath,
		QualityOffset:   *qualityOffset,
		BeginSnip:       *beginSnip,
		EndSnip:         *endSnip,
		Qlimit:          *qlimit,
		Duplimit:        *duplimit,
		UnmatchedDump:   *unmatchedDump,
		Seed:            *seed,
		Workers:         *workers,
	}

	if *monitorAddr != "" {
		hub := monitor.NewHub(*monitorRedis, "antonie:progress")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go hub.Run(ctx)
		srv := &http.Server{Addr: *monitorAddr, Handler: hub.Router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("monitor server stopped: %v", err)
			}
		}()
		log.Printf("monitor dashboard listening on %s", *monitorAddr)
		cfg.Progress = func(stage string, processed, total uint64) {
			hub.Publish(monitor.Event{Stage: stage, Processed: processed, Total: total})
		}
	}

	r, err := pipeline.Execute(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "antonie: %v\n", err)
		return 1
	}

	if err := writeReport(r, *dataJSPath); err != nil {
		fmt.Fprintf(os.Stderr, "antonie: writing report: %v\n", err)
		return 1
	}

	if *depthPNGPath != "" {
		samples := report.BinDepth(r.Cov.CoverageSlice(), 2000)
		if err := report.RenderDepthPlotPNG(samples, *depthPNGPath); err != nil {
			fmt.Fprintf(os.Stderr, "antonie: rendering depth plot: %v\n", err)
			return 1
		}
	}

	printSummary(r)
	return 0
}

func writeReport(r *pipeline.Run, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return gverrors.Wrap(gverrors.IOError, "creating report file", err)
	}
	defer f.Close()

	w := report.New(f)

	// fullHisto is the coverage histogram frozen after the exact pass;
	// fuzzyHisto re-scans the map once the fuzzy matches have landed too.
	snapshot := r.Cov.Snapshot(r.Genome.Bytes())
	w.AddSeries("fullHisto", report.HistogramSeries("fullHisto", r.ExactHistogram).Points)
	w.AddSeries("fuzzyHisto", report.HistogramSeries("fuzzyHisto", snapshot.Histogram).Points)

	var totalReads uint64
	for _, c := range r.Acc.GCReadHisto() {
		totalReads += c
	}
	w.AddSeries("dupcounts", dupCountsSeries(r.Dedup.Counts(), totalReads))
	w.AddSeries("kmerstats", floatSeries(r.Acc.KmerStats()))

	// qhisto is the fraction of all streamed bases reporting each Phred
	// score, bins 0..49.
	totalBases := r.Acc.TotalBases()
	counts := r.Acc.QualityCounts()
	qhisto := make([][2]float64, 0, 50)
	for q := 0; q < 50 && q < len(counts); q++ {
		y := 0.0
		if totalBases > 0 {
			y = float64(counts[q]) / float64(totalBases)
		}
		qhisto = append(qhisto, [2]float64{float64(q), y})
	}
	w.AddSeries("qhisto", qhisto)

	w.AddSeries("gcreadhisto", gcReadHistoSeries(r.Acc.GCReadHisto(), r.ReadLen))
	w.AddSeries("gcrefhisto", gcRefHistoSeries(r.Genome.GCCountHisto(r.ReadLen), r.ReadLen, r.Genome.Size()))

	w.AddSeries("gcRatios", gcRatioSeries(r.Acc.GCMappings(), r.Acc.TAMappings()))

	qualities, qlo, qhi := reportedQualitySeries(r.Acc.OffsetErr())
	w.AddSeries("qualities", qualities)
	w.AddSeries("qlo", qlo)
	w.AddSeries("qhi", qhi)

	w.AddSeries("qqdata", qqSeries(r.Acc))
	w.AddSeries("referenceQ", observedQualitySeries(r.Acc.CorrectMappings(), r.Acc.WrongMappings()))

	var controlQ [][2]float64
	if r.Exclude != nil {
		controlQ = countsToSeries(r.ExcludeQuality[:])
	}
	w.AddSeries("controlQ", controlQ)

	significant := r.SignificantLoci()
	for _, c := range pipeline.ClusterVariantLoci(significant, 100) {
		if err := addRegion(w, r, "Variable", c.Midpoint()); err != nil {
			return err
		}
	}

	for _, c := range pipeline.ClusterUnmatched(snapshot.Unmatched, 100) {
		if err := addRegion(w, r, "Undermatched", c.Midpoint()); err != nil {
			return err
		}
	}

	for _, h := range topInsertHotspots(r.Cov.InsertCounts(), 20) {
		if h.count < 10 {
			break
		}
		if err := addRegion(w, r, "Insert", h.pos); err != nil {
			return err
		}
	}

	return w.Flush(r.Log, r.Genome.Composition().GCRatio())
}

// addRegion queues one region[i] entry centered on mid: a 400-base window
// of [position, coverage] depth pairs, the back-reference read pileup over
// the same window, and any gene annotations overlapping the midpoint.
func addRegion(w *report.Writer, r *pipeline.Run, name string, mid uint32) error {
	var start uint32
	if mid > 200 {
		start = mid - 200
	}
	stop := mid + 200
	if stop > r.Genome.Size() {
		stop = r.Genome.Size()
	}

	depth := make([][2]float64, 0, stop-start)
	for pos := start; pos < stop; pos++ {
		depth = append(depth, [2]float64{float64(pos), float64(r.Cov.CoverageAt(pos))})
	}
	picture, err := r.Pileup(start, stop)
	if err != nil {
		return err
	}
	var features []annotations.Feature
	if r.Annotations != nil {
		features = r.Annotations.At(mid)
	}
	w.AddRegion(report.Region{
		Name:        name,
		Pos:         mid,
		Depth:       depth,
		Picture:     picture,
		Annotations: features,
	})
	return nil
}

// gcRatioSeries is the per-read-offset GC fraction gc/(gc+ta), skipping
// offsets with no observations so an empty cycle never divides by zero.
func gcRatioSeries(gc, ta []uint64) [][2]float64 {
	var points [][2]float64
	for i := range gc {
		total := gc[i] + ta[i]
		if total == 0 {
			continue
		}
		points = append(points, [2]float64{float64(i), float64(gc[i]) / float64(total)})
	}
	return points
}

// reportedQualitySeries renders the per-read-offset reported-quality curve
// with its one-standard-deviation band (the qualities/qlo/qhi series),
// skipping offsets with no observations.
func reportedQualitySeries(ests []qstat.Estimator) (qualities, qlo, qhi [][2]float64) {
	for i := range ests {
		e := &ests[i]
		if e.N() == 0 {
			continue
		}
		x := float64(i)
		lo, hi := qstat.QScoreBand(e)
		qualities = append(qualities, [2]float64{x, qstat.QScore(e)})
		qlo = append(qlo, [2]float64{x, lo})
		qhi = append(qhi, [2]float64{x, hi})
	}
	return qualities, qlo, qhi
}

// observedQualitySeries recalibrates the per-read-offset correct/wrong
// tallies of matched reads into the quality actually observed at each
// sequencing cycle (the referenceQ series), skipping offsets where either
// count is zero.
func observedQualitySeries(correctMappings, wrongMappings []uint64) [][2]float64 {
	var points [][2]float64
	for i := range correctMappings {
		if correctMappings[i] == 0 || wrongMappings[i] == 0 {
			continue
		}
		q, _, _ := qstat.Phred(correctMappings[i], wrongMappings[i])
		points = append(points, [2]float64{float64(i), q})
	}
	return points
}

// qqSeries builds the reported-vs-observed quality scatter (qqdata), one
// point per reported Phred bin with at least one observation at a matched
// locus.
func qqSeries(acc *variant.Accumulator) [][2]float64 {
	var qqdata [][2]float64
	for q := 0; q < 60; q++ {
		correct, incorrect := acc.QualityTally(byte(q))
		if correct+incorrect == 0 {
			continue
		}
		recalibrated, _, _ := qstat.Phred(correct, incorrect)
		qqdata = append(qqdata, [2]float64{float64(q), recalibrated})
	}
	return qqdata
}

// gcRefHistoSeries renders the reference's GC-count histogram with x in GC
// percent and y normalized by the number of read-length windows the genome
// holds, so it plots on the same scale as gcreadhisto.
func gcRefHistoSeries(counts []uint64, readLen int, genomeSize uint32) [][2]float64 {
	windows := float64(genomeSize) / float64(readLen)
	points := make([][2]float64, len(counts))
	for i, c := range counts {
		y := 0.0
		if windows > 0 {
			y = float64(c) / windows
		}
		points[i] = [2]float64{100 * float64(i) / float64(readLen), y}
	}
	return points
}

// gcReadHistoSeries normalizes the per-read GC-count histogram into a
// fraction-of-reads distribution with x in GC percent.
func gcReadHistoSeries(counts []uint64, readLen int) [][2]float64 {
	var total uint64
	for _, c := range counts {
		total += c
	}
	points := make([][2]float64, len(counts))
	for i, c := range counts {
		y := 0.0
		if total > 0 {
			y = float64(c) / float64(total)
		}
		points[i] = [2]float64{100 * float64(i) / float64(readLen), y}
	}
	return points
}

type insertHotspot struct {
	pos   uint32
	count uint32
}

// topInsertHotspots returns the top-N insertion positions by supporting-read
// count, matching the original program's topInserts loop (SPEC_FULL.md
// supplemented feature 7).
func topInsertHotspots(counts map[uint32]uint32, n int) []insertHotspot {
	hotspots := make([]insertHotspot, 0, len(counts))
	for pos, c := range counts {
		hotspots = append(hotspots, insertHotspot{pos: pos, count: c})
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].count != hotspots[j].count {
			return hotspots[i].count > hotspots[j].count
		}
		return hotspots[i].pos < hotspots[j].pos
	})
	if len(hotspots) > n {
		hotspots = hotspots[:n]
	}
	return hotspots
}

func floatSeries(values []float64) [][2]float64 {
	points := make([][2]float64, len(values))
	for i, v := range values {
		points[i] = [2]float64{float64(i), v}
	}
	return points
}

func countsToSeries(counts []uint64) [][2]float64 {
	points := make([][2]float64, len(counts))
	for i, c := range counts {
		points[i] = [2]float64{float64(i), float64(c)}
	}
	return points
}

// dupCountsSeries renders the duplicate-occurrence histogram: for each
// repeat count, the number of distinct sequences seen that many times,
// divided by the total read count.
func dupCountsSeries(counts map[uint64]uint64, totalReads uint64) [][2]float64 {
	keys := make([]uint64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	points := make([][2]float64, len(keys))
	for i, k := range keys {
		y := float64(counts[k])
		if totalReads > 0 {
			y /= float64(totalReads)
		}
		points[i] = [2]float64{float64(k), y}
	}
	return points
}

func printSummary(r *pipeline.Run) {
	total := r.ExactCount + r.FuzzyCount + r.ExcludeCount + r.UnfoundCount +
		r.Rejects.ContainsN + r.Rejects.WrongLength + r.Rejects.TooFrequent
	pct := func(n uint64) float64 {
		if total == 0 {
			return 0
		}
		return 100 * float64(n) / float64(total)
	}

	fmt.Printf("reads processed:     %d\n", total)
	fmt.Printf("exact matches:       %d (%.2f%%)\n", r.ExactCount, pct(r.ExactCount))
	fmt.Printf("fuzzy matches:       %d (%.2f%%)\n", r.FuzzyCount, pct(r.FuzzyCount))
	fmt.Printf("exclusion matches:   %d (%.2f%%)\n", r.ExcludeCount, pct(r.ExcludeCount))
	fmt.Printf("unmatched:           %d (%.2f%%)\n", r.UnfoundCount, pct(r.UnfoundCount))
	fmt.Printf("rejected (N):        %d (%.2f%%)\n", r.Rejects.ContainsN, pct(r.Rejects.ContainsN))
	fmt.Printf("rejected (length):   %d (%.2f%%)\n", r.Rejects.WrongLength, pct(r.Rejects.WrongLength))
	fmt.Printf("rejected (freq):     %d (%.2f%%)\n", r.Rejects.TooFrequent, pct(r.Rejects.TooFrequent))

	significant := r.SignificantLoci()
	fmt.Printf("\nsignificant loci: %d\n", len(significant))
	for _, v := range significant {
		depth := r.Cov.CoverageAt(v.Pos)
		ref := r.Genome.Base(v.Pos)
		samples := r.Acc.LocusStats(v.Pos)
		fmt.Printf("  pos=%d score=%.1f ref=%c depth=%d\n", v.Pos, v.Score, ref, depth)
		fmt.Printf("    %s\n", baseCompositionLine(ref, depth, samples))
		fmt.Printf("    Fraction tail: %.3f\n", v.TailFraction)
		if r.Annotations != nil {
			for _, f := range r.Annotations.At(v.Pos) {
				fmt.Printf("    annotation: %s %s\n", f.Tag, f.Name)
			}
		}
	}

	inserts := topInsertHotspots(r.Cov.InsertCounts(), 20)
	fmt.Printf("\ninsertion hotspots: %d\n", len(r.Cov.InsertCounts()))
	for _, h := range inserts {
		fmt.Printf("  pos=%d supporting_reads=%d\n", h.pos, h.count)
	}
}

// baseCompositionLine renders the A:/C:/G:/T: percentage breakdown of a
// locus's observed bases (the reference's matched-read depth counting
// toward the reference base, plus every recorded mismatch sample), as the
// original program's per-locus cout report does.
func baseCompositionLine(ref byte, refDepth uint32, samples []variant.Sample) string {
	var counts [256]uint32
	counts[ref] += refDepth
	for _, s := range samples {
		counts[s.Base]++
	}
	total := counts['A'] + counts['C'] + counts['G'] + counts['T']
	pct := func(n uint32) float64 {
		if total == 0 {
			return 0
		}
		return 100 * float64(n) / float64(total)
	}
	return fmt.Sprintf("A:%.1f%% C:%.1f%% G:%.1f%% T:%.1f%%", pct(counts['A']), pct(counts['C']), pct(counts['G']), pct(counts['T']))
}
