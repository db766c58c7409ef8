// Package pipeline implements the run coordinator (C8, spec §4.9): the
// state machine that loads the reference, builds the k-mer index, drives
// the exact and fuzzy matching passes over the FASTQ stream, and freezes
// the coverage/variant accumulators for summarization. It is the one
// component that owns every other package's lifetime for the run.
package pipeline

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"antonie/internal/annotations"
	"antonie/internal/cluster"
	"antonie/internal/coverage"
	"antonie/internal/dedup"
	"antonie/internal/fastqio"
	"antonie/internal/gverrors"
	"antonie/internal/kmerindex"
	"antonie/internal/logging"
	"antonie/internal/match"
	"antonie/internal/refgenome"
	"antonie/internal/samio"
	"antonie/internal/variant"
	"antonie/internal/workers"
)

// Config holds every CLI-configurable knob the coordinator needs (spec
// §6 CLI surface, plus the optional concurrency/monitor knobs SPEC_FULL.md
// adds).
type Config struct {
	ReferencePath   string
	FastqPath       string
	AnnotationsPath string
	ExcludePath     string
	SAMPath         string
	UnfoundPath     string

	QualityOffset int // default 33
	BeginSnip     int
	EndSnip       int
	Qlimit        int
	// Duplimit enables the duplicate-read filter when nonzero; the
	// rejection threshold itself is fixed at maxReadOccurrences.
	Duplimit      int
	UnmatchedDump bool

	FuzzyK int // default 11
	Seed   int64

	// Workers > 1 fans the fuzzy pass's read-only matching out over that
	// many goroutines; coverage and tally writes stay serialized in the
	// coordinator, in file order (spec §5).
	Workers int

	// Progress, when non-nil, receives coarse per-stage updates: the stage
	// name, the number of reads handled so far in that stage, and the stage
	// total (0 while still unknown).
	Progress func(stage string, processed, total uint64)
}

// maxReadOccurrences is the duplicate-filter cutoff: when the filter is
// enabled, a read whose exact sequence has already been seen more than
// this many times is rejected as too frequent.
const maxReadOccurrences = 4

// RejectCounts tallies per-read anomalies that are skipped rather than
// fatal (spec §7).
type RejectCounts struct {
	ContainsN   uint64
	WrongLength uint64
	TooFrequent uint64
}

// Run is the frozen result of one full pipeline execution, ready for
// summarization and report rendering.
type Run struct {
	Genome      *refgenome.Genome
	Exclude     *refgenome.Genome
	Annotations *annotations.Set

	Cov *coverage.Map
	Acc *variant.Accumulator

	ReadLen int
	Qlimit  int

	ExactCount   uint64
	FuzzyCount   uint64
	ExcludeCount uint64
	UnfoundCount uint64
	Rejects      RejectCounts

	Dedup *dedup.Counter

	// ExactHistogram is the coverage histogram frozen at the end of the
	// exact pass, before any fuzzy match lands (the report's fullHisto
	// series; the post-fuzzy histogram becomes fuzzyHisto).
	ExactHistogram []uint64

	// ExcludeQuality tallies the reported Phred quality of every base in a
	// read that matched the exclusion genome (spec's "Exclusion genome":
	// matches are counted but not analyzed, so there is no correct/incorrect
	// mismatch signal to recalibrate from here, only the raw distribution
	// of qualities among verified control-genome reads, feeding controlQ).
	ExcludeQuality [60]uint64

	unfoundOffsets []int64
	cfg            Config

	Log *logging.Log
}

func (r *Run) tallyExcludeQuality(qual []byte) {
	for _, q := range qual {
		if int(q) < len(r.ExcludeQuality) {
			r.ExcludeQuality[q]++
		}
	}
}

func (r *Run) progress(stage string, processed, total uint64) {
	if r.cfg.Progress != nil {
		r.cfg.Progress(stage, processed, total)
	}
}

// Execute runs the full state machine (spec §4.9 steps 1-5) and returns the
// frozen Run; report-ready aggregates are built from it afterward through
// its accessors (SignificantLoci, Pileup, Cov.Snapshot).
func Execute(cfg Config, log *logging.Log) (*Run, error) {
	if cfg.FuzzyK == 0 {
		cfg.FuzzyK = 11
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.QualityOffset == 0 {
		cfg.QualityOffset = 33
	}

	refFile, err := os.Open(cfg.ReferencePath)
	if err != nil {
		return nil, gverrors.Wrap(gverrors.IOError, "opening reference", err)
	}
	genome, err := refgenome.Load(refFile)
	refFile.Close()
	if err != nil {
		return nil, err
	}
	log.Printf("loaded reference %s: %d bases, GC=%.4f", genome.Name, genome.Size(), genome.Composition().GCRatio())

	var exclude *refgenome.Genome
	if cfg.ExcludePath != "" {
		exFile, err := os.Open(cfg.ExcludePath)
		if err != nil {
			return nil, gverrors.Wrap(gverrors.IOError, "opening exclusion genome", err)
		}
		exclude, err = refgenome.Load(exFile)
		exFile.Close()
		if err != nil {
			return nil, err
		}
		log.Printf("loaded exclusion genome %s: %d bases", exclude.Name, exclude.Size())
	}

	var annot *annotations.Set
	if cfg.AnnotationsPath != "" {
		af, err := os.Open(cfg.AnnotationsPath)
		if err != nil {
			return nil, gverrors.Wrap(gverrors.IOError, "opening annotations", err)
		}
		annot, err = annotations.Load(af)
		af.Close()
		if err != nil {
			return nil, err
		}
		log.Printf("loaded %d annotation features", annot.Len())
	}

	reader, err := fastqio.Open(cfg.FastqPath, cfg.QualityOffset, cfg.BeginSnip, cfg.EndSnip)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	first, err := reader.Next()
	if err == io.EOF {
		return nil, gverrors.New(gverrors.UnexpectedEOF, "fastq source has no reads")
	}
	if err != nil {
		return nil, err
	}
	readLen := len(first.Seq)
	log.Printf("detected read length %d", readLen)

	idx := kmerindex.Build(genome.Bytes(), uint32(readLen))
	log.Printf("built exact-match index: %d entries, fill ratio %.4f", idx.Len(), idx.FillRatio)

	var exIdx *kmerindex.Index
	if exclude != nil {
		exIdx = kmerindex.Build(exclude.Bytes(), uint32(readLen))
	}

	run := &Run{
		Genome:      genome,
		Exclude:     exclude,
		Annotations: annot,
		Cov:         coverage.New(genome.Size()),
		Acc:         variant.New(readLen),
		ReadLen:     readLen,
		Qlimit:      cfg.Qlimit,
		Dedup:       dedup.New(4096),
		cfg:         cfg,
		Log:         log,
	}

	var samWriter *samio.Writer
	if cfg.SAMPath != "" {
		sf, err := os.Create(cfg.SAMPath)
		if err != nil {
			return nil, gverrors.Wrap(gverrors.IOError, "creating SAM output", err)
		}
		defer sf.Close()
		samWriter, err = samio.NewWriter(sf, genome.Name, genome.Size())
		if err != nil {
			return nil, gverrors.Wrap(gverrors.IOError, "writing SAM header", err)
		}
		defer samWriter.Flush()
	}

	exactMatcher := match.NewExact(idx, cfg.Seed)
	var excludeExact *match.Exact
	if exIdx != nil {
		excludeExact = match.NewExact(exIdx, cfg.Seed+1)
	}

	var streamed uint64
	processExact := func(rec fastqio.Record) error {
		streamed++
		if streamed%8192 == 0 {
			run.progress("exact", streamed, 0)
		}
		if err := run.Acc.RecordReadComposition(rec.Seq, rec.Qual); err != nil {
			return err
		}
		run.Dedup.FeedString(rec.Seq)

		if containsN(rec.Seq) {
			run.Rejects.ContainsN++
			return nil
		}
		if len(rec.Seq) != readLen {
			run.Rejects.WrongLength++
			return nil
		}
		if cfg.Duplimit > 0 && run.Dedup.Seen(rec.Seq) > maxReadOccurrences {
			run.Rejects.TooFrequent++
			return nil
		}

		if r, ok := exactMatcher.FindBoth(rec.Seq, rec.Qual); ok {
			run.Acc.RecordExactMatch(run.Cov, r.Pos, rec.Offset, r.Seq, r.Qual, r.Reversed, cfg.Qlimit)
			run.ExactCount++
			if samWriter != nil {
				samWriter.WriteRecord(rec.Name, r.Pos, r.Reversed, r.Seq, r.Qual, 0)
			}
			return nil
		}
		if excludeExact != nil {
			if _, ok := excludeExact.FindBoth(rec.Seq, rec.Qual); ok {
				run.ExcludeCount++
				run.tallyExcludeQuality(rec.Qual)
				return nil
			}
		}
		run.unfoundOffsets = append(run.unfoundOffsets, rec.Offset)
		return nil
	}

	if err := processExact(first); err != nil {
		return nil, err
	}
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := processExact(rec); err != nil {
			return nil, err
		}
	}
	log.Printf("exact pass: %d matched, %d excluded, %d unresolved", run.ExactCount, run.ExcludeCount, len(run.unfoundOffsets))
	log.Printf("mean reported quality %.2f over %d bases", run.Acc.MeanQuality(), run.Acc.TotalBases())
	run.progress("exact", streamed, streamed)

	run.ExactHistogram = run.Cov.Snapshot(genome.Bytes()).Histogram

	idx = kmerindex.Build(genome.Bytes(), uint32(cfg.FuzzyK))
	log.Printf("rebuilt fuzzy index: k=%d, %d entries", cfg.FuzzyK, idx.Len())
	var exFuzzyIdx *kmerindex.Index
	if exclude != nil {
		exFuzzyIdx = kmerindex.Build(exclude.Bytes(), uint32(cfg.FuzzyK))
	}

	verdicts := make([]fuzzyVerdict, len(run.unfoundOffsets))
	if cfg.Workers > 1 {
		err = fuzzyMatchConcurrent(cfg, run.unfoundOffsets, idx, exFuzzyIdx, genome, exclude, verdicts)
	} else {
		err = fuzzyMatchSequential(cfg, run.unfoundOffsets, reader, idx, exFuzzyIdx, genome, exclude, verdicts)
	}
	if err != nil {
		return nil, err
	}

	// Writes to the coverage map and accumulator happen here only, in file
	// order, regardless of how the matching above was scheduled (spec §5:
	// back-reference prepend order must track arrival order).
	var stillUnfound []int64
	for i, v := range verdicts {
		switch v.outcome {
		case fuzzyHit:
			ref := genome.Snippet(v.res.Pos, v.res.Pos+uint32(len(v.res.Seq)))
			result, err := run.Acc.DNADiff(run.Cov, v.res.Pos, v.rec.Offset, v.res.Seq, v.res.Qual, v.res.Reversed, cfg.Qlimit, ref)
			if err != nil {
				return nil, err
			}
			run.FuzzyCount++
			if samWriter != nil {
				samWriter.WriteRecord(v.rec.Name, v.res.Pos, v.res.Reversed, result.Seq, result.Qual, result.Indel)
			}
		case fuzzyExcluded:
			run.ExcludeCount++
			run.tallyExcludeQuality(v.rec.Qual)
		case fuzzyMiss:
			run.UnfoundCount++
			stillUnfound = append(stillUnfound, v.rec.Offset)
			if samWriter != nil {
				samWriter.WriteUnmapped(v.rec.Name, v.rec.Seq, v.rec.Qual)
			}
		}
		if (i+1)%1024 == 0 {
			run.progress("fuzzy", uint64(i+1), uint64(len(verdicts)))
		}
	}
	run.unfoundOffsets = stillUnfound
	log.Printf("fuzzy pass: %d matched, %d excluded, %d unfound", run.FuzzyCount, run.ExcludeCount, run.UnfoundCount)
	run.progress("fuzzy", uint64(len(verdicts)), uint64(len(verdicts)))

	if cfg.UnmatchedDump && cfg.UnfoundPath != "" {
		if err := run.dumpUnfound(cfg.UnfoundPath); err != nil {
			return nil, err
		}
	}

	return run, nil
}

type fuzzyOutcome int

const (
	fuzzyMiss fuzzyOutcome = iota
	fuzzyHit
	fuzzyExcluded
)

// fuzzyVerdict is one read's fuzzy-pass result, computed with read-only
// access to the genome and index so verdicts can be produced concurrently
// and committed serially afterward.
type fuzzyVerdict struct {
	rec     fastqio.Record
	res     match.Result
	outcome fuzzyOutcome
}

func classifyFuzzy(rec fastqio.Record, fz, exFz *match.Fuzzy) fuzzyVerdict {
	v := fuzzyVerdict{rec: rec}
	if r, ok := fz.Match(rec.Seq, rec.Qual); ok {
		v.res = r
		v.outcome = fuzzyHit
		return v
	}
	if exFz != nil {
		if _, ok := exFz.Match(rec.Seq, rec.Qual); ok {
			v.outcome = fuzzyExcluded
			return v
		}
	}
	return v
}

func fuzzyMatchSequential(cfg Config, offsets []int64, reader *fastqio.Reader, idx, exIdx *kmerindex.Index, genome, exclude *refgenome.Genome, verdicts []fuzzyVerdict) error {
	fz := match.NewFuzzy(idx, genome.Bytes(), cfg.Qlimit, cfg.Seed+2)
	var exFz *match.Fuzzy
	if exIdx != nil {
		exFz = match.NewFuzzy(exIdx, exclude.Bytes(), cfg.Qlimit, cfg.Seed+3)
	}
	for i, offset := range offsets {
		rec, err := reader.ReadAt(offset)
		if err != nil {
			return err
		}
		verdicts[i] = classifyFuzzy(rec, fz, exFz)
	}
	return nil
}

// fuzzyMatchConcurrent fans the matching out over cfg.Workers goroutines.
// Reads are assigned to workers by rendezvous-hashing their source offset
// and each worker's tie-break PRNG is seeded from (run seed, worker id), so
// every read's verdict is a function of the inputs and the seed alone,
// never of goroutine scheduling (spec §5 reproducibility).
func fuzzyMatchConcurrent(cfg Config, offsets []int64, idx, exIdx *kmerindex.Index, genome, exclude *refgenome.Genome, verdicts []fuzzyVerdict) error {
	part := workers.New(cfg.Workers)
	queues := make([][]int, cfg.Workers)
	for i, off := range offsets {
		w := part.WorkerForOffset(off)
		queues[w] = append(queues[w], i)
	}

	var wg sync.WaitGroup
	errs := make([]error, cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			reader, err := fastqio.Open(cfg.FastqPath, cfg.QualityOffset, cfg.BeginSnip, cfg.EndSnip)
			if err != nil {
				errs[w] = err
				return
			}
			defer reader.Close()

			fz := match.NewFuzzy(idx, genome.Bytes(), cfg.Qlimit, workers.SeedFor(cfg.Seed+2, w))
			var exFz *match.Fuzzy
			if exIdx != nil {
				exFz = match.NewFuzzy(exIdx, exclude.Bytes(), cfg.Qlimit, workers.SeedFor(cfg.Seed+3, w))
			}
			for _, i := range queues[w] {
				rec, err := reader.ReadAt(offsets[i])
				if err != nil {
					errs[w] = err
					return
				}
				verdicts[i] = classifyFuzzy(rec, fz, exFz)
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func containsN(seq []byte) bool {
	for _, c := range seq {
		if c == 'N' || c == 'n' {
			return true
		}
	}
	return false
}

func (r *Run) dumpUnfound(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return gverrors.Wrap(gverrors.IOError, "creating unfound dump", err)
	}
	defer out.Close()

	reader, err := fastqio.Open(r.cfg.FastqPath, r.cfg.QualityOffset, 0, 0)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, offset := range r.unfoundOffsets {
		rec, err := reader.ReadAt(offset)
		if err != nil {
			return err
		}
		qualAscii := make([]byte, len(rec.Qual))
		for i, q := range rec.Qual {
			qualAscii[i] = q + byte(r.cfg.QualityOffset)
		}
		out.WriteString("@" + rec.Name + "\n")
		out.Write(rec.Seq)
		out.WriteString("\n+\n")
		out.Write(qualAscii)
		out.WriteString("\n")
	}
	return nil
}

// Pileup renders the ASCII read stack over reference positions
// [start, stop): the reference snippet on its own line halfway down, then
// one row per back-referenced read, indented to its genomic column.
// Matching bases print as '.', confident mismatches as the read's base,
// low-quality mismatches as a space, and mid-quality mismatches in
// lowercase; reverse-complemented reads get a trailing 'R'. Reads are
// materialized on demand by seeking the FASTQ source at each
// back-reference's recorded offset (spec §9).
func (r *Run) Pileup(start, stop uint32) (string, error) {
	reader, err := fastqio.Open(r.cfg.FastqPath, r.cfg.QualityOffset, r.cfg.BeginSnip, r.cfg.EndSnip)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	reference := append([]byte(nil), r.Genome.Snippet(start, stop)...)
	var b strings.Builder
	insertPos := 0

	for i := uint32(0); start+i < stop; i++ {
		if i == (stop-start)/2 {
			b.Write(reference)
			b.WriteByte('\n')
		}
		for _, br := range r.Cov.BackRefsAt(start + i) {
			rec, err := reader.ReadAt(br.ReadOffset)
			if err != nil {
				return "", err
			}
			seq, qual := rec.Seq, rec.Qual
			if br.Reversed {
				seq = match.ReverseComplement(seq)
				qual = match.Reverse(qual)
			}

			if br.Indel > 0 && insertPos == 0 {
				// The read carries an insertion: stretch the reference
				// with a '_' column so every read row stays aligned.
				at := int(i) + int(br.Indel)
				if at < len(reference) {
					reference = insertByte(reference, at, '_')
					insertPos = at
				}
			} else if br.Indel < 0 {
				at := int(-br.Indel)
				seq = insertByte(seq, at, 'X')
				qual = insertByte(qual, at, 42)
			}
			if br.Indel <= 0 && insertPos != 0 && int(i) > insertPos {
				seq = insertByte(seq, 0, '<')
				qual = insertByte(qual, 0, 40)
			}

			for s := uint32(0); s < i; s++ {
				b.WriteByte(' ')
			}
			offset := 0
			for j := 0; j < len(seq) && int(i)+j+offset < len(reference); j++ {
				if reference[int(i)+j] == '_' && br.Indel == 0 {
					b.WriteByte('_')
					offset = 1
				}
				switch {
				case reference[int(i)+j+offset] == seq[j]:
					b.WriteByte('.')
				case qual[j] > 30:
					b.WriteByte(seq[j])
				case qual[j] < 22:
					b.WriteByte(' ')
				default:
					b.WriteByte(lowerBase(seq[j]))
				}
			}
			b.WriteString("                 ")
			if br.Reversed {
				b.WriteByte('R')
			} else {
				b.WriteByte(' ')
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func insertByte(b []byte, i int, c byte) []byte {
	if i > len(b) {
		i = len(b)
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b[:i]...)
	out = append(out, c)
	out = append(out, b[i:]...)
	return out
}

func lowerBase(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// VariantLocus is a reference position flagged by variant.Variability as
// significant, suitable for clustering via internal/cluster.
type VariantLocus struct {
	Pos          uint32
	Score        float64
	TailFraction float64
}

// Position implements cluster.Item.
func (v VariantLocus) Position() uint32 { return v.Pos }

// SignificantLoci scans every locus with recorded mismatch samples and
// returns those whose variability score is significant (spec §4.8),
// sorted by position.
func (r *Run) SignificantLoci() []VariantLocus {
	positions := r.Acc.LociWithVariants()
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	var out []VariantLocus
	for _, pos := range positions {
		samples := r.Acc.LocusStats(pos)
		score, tailFraction, significant := variant.Variability(r.Genome.Base(pos), r.Cov.CoverageAt(pos), samples)
		if significant {
			out = append(out, VariantLocus{Pos: pos, Score: score, TailFraction: tailFraction})
		}
	}
	return out
}

// ClusterVariantLoci groups significant loci within gap positions of each
// other (spec §4.10).
func ClusterVariantLoci(loci []VariantLocus, gap uint32) []cluster.Cluster[VariantLocus] {
	c := cluster.New[VariantLocus](gap)
	for _, l := range loci {
		c.Feed(l)
	}
	return c.Clusters
}

// ClusterUnmatched groups adjacent undercovered regions within gap
// positions of each other.
func ClusterUnmatched(regions []coverage.Unmatched, gap uint32) []cluster.Cluster[coverage.Unmatched] {
	c := cluster.New[coverage.Unmatched](gap)
	for _, u := range regions {
		c.Feed(u)
	}
	return c.Clusters
}
