// Package refgenome holds the reference genome in memory: a single FASTA
// record, 1-based (a sentinel occupies position 0), with base-composition
// counts and substring snippets. Adapted from genomevedic's
// internal/loader/decompressor.go streaming style, grounded in
// original_source/antonie.cc's ReferenceGenome constructor.
package refgenome

import (
	"bufio"
	"io"
	"math"
	"strings"

	"antonie/internal/gverrors"
)

// Composition tallies the four canonical bases seen in the genome. Other
// IUPAC symbols (N, ...) pass through the sequence verbatim but are not
// separately counted, matching the original program.
type Composition struct {
	A, C, G, T uint64
}

// GCRatio returns (G+C)/(A+C+G+T), or 0 if no canonical base was seen.
func (c Composition) GCRatio() float64 {
	total := c.A + c.C + c.G + c.T
	if total == 0 {
		return 0
	}
	return float64(c.G+c.C) / float64(total)
}

// Genome is a single loaded FASTA reference, 1-based.
type Genome struct {
	Name string
	// seq holds the bases with a leading sentinel byte at index 0 so that
	// valid genomic positions are 1..Size() inclusive (spec §3: "Positions
	// are 1-based (position 0 is a sentinel)").
	seq  []byte
	comp Composition
}

// Load reads one FASTA record from r. The first line must begin with '>';
// the name is everything after '>' up to the first whitespace. Subsequent
// lines are concatenated verbatim (including any 'N' bases) until the next
// '>' header or EOF; blank lines are skipped.
func Load(r io.Reader) (*Genome, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, gverrors.Wrap(gverrors.IOError, "reading reference header", err)
		}
		return nil, gverrors.New(gverrors.UnexpectedEOF, "empty reference file")
	}
	header := strings.TrimRight(scanner.Text(), "\r")
	if !strings.HasPrefix(header, ">") {
		return nil, gverrors.New(gverrors.BadFormat, "reference file does not begin with '>'")
	}
	name := header[1:]
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}

	g := &Genome{Name: name, seq: []byte{'*'}}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			// Only the first record is consumed (spec §4.1).
			break
		}
		g.seq = append(g.seq, []byte(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, gverrors.Wrap(gverrors.IOError, "reading reference body", err)
	}

	for _, c := range g.seq[1:] {
		switch c {
		case 'A':
			g.comp.A++
		case 'C':
			g.comp.C++
		case 'G':
			g.comp.G++
		case 'T':
			g.comp.T++
		}
	}
	return g, nil
}

// Size returns the number of bases in the genome (excluding the sentinel).
func (g *Genome) Size() uint32 {
	if len(g.seq) == 0 {
		return 0
	}
	return uint32(len(g.seq) - 1)
}

// Composition returns the reference's base counts.
func (g *Genome) Composition() Composition { return g.comp }

// Snippet returns ref[start:stop), clamped to the genome's end (spec §4.1).
func (g *Genome) Snippet(start, stop uint32) []byte {
	if int(start) >= len(g.seq) {
		return nil
	}
	if int(stop) > len(g.seq) {
		stop = uint32(len(g.seq))
	}
	if stop < start {
		return nil
	}
	return g.seq[start:stop]
}

// Base returns the single base at pos, or 0 if pos is out of range.
func (g *Genome) Base(pos uint32) byte {
	if int(pos) >= len(g.seq) {
		return 0
	}
	return g.seq[pos]
}

// Bytes exposes the raw 1-based backing array (index 0 is the sentinel '*').
// Used by components that need direct access for performance, such as the
// k-mer indexer.
func (g *Genome) Bytes() []byte { return g.seq }

// GCCountHisto slides a windowSize-wide window across the genome with a
// stride of windowSize/4 and tallies each window into the bin matching its
// rounded GC base count, bins 0..windowSize. The 4x-overlapping sampling is
// compensated by dividing every bin by 4, so the histogram reads as if the
// genome had been sampled once per window length (the gcrefhisto series).
func (g *Genome) GCCountHisto(windowSize int) []uint64 {
	if windowSize <= 0 || len(g.seq) <= 1 {
		return nil
	}
	stride := windowSize / 4
	if stride == 0 {
		stride = 1
	}

	out := make([]uint64, windowSize+1)
	for pos := 1; pos < len(g.seq); pos += stride {
		snip := g.Snippet(uint32(pos), uint32(pos+windowSize))
		if len(snip) == 0 {
			continue
		}
		gc := 0
		for _, c := range snip {
			if c == 'G' || c == 'C' {
				gc++
			}
		}
		bin := int(math.Round(float64(windowSize) * float64(gc) / float64(len(snip))))
		if bin > windowSize {
			bin = windowSize
		}
		out[bin]++
	}
	for i := range out {
		out[i] /= 4
	}
	return out
}
