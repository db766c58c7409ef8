// Package samio writes the optional SAM alignment output (spec §6): one
// header line naming the reference and its length, then one line per
// mapped read with a minimal CIGAR reflecting at most the single 1-base
// indel this pipeline can detect.
//
// CIGAR constuction reuses github.com/biogo/hts/sam's Cigar/CigarOp types
// (the same package kortschak-loopy's cmd/reefer imports for its own CIGAR
// cost model), which already know how to render the op-length/op-code text
// a SAM line needs; the surrounding tab-separated record line is written
// directly, since it is plain text with no framing this pipeline needs a
// full BAM-oriented reader/writer stack for.
package samio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/biogo/hts/sam"
)

// Writer emits SAM-formatted text to an underlying io.Writer.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w and immediately writes the SAM header: "@HD" plus one
// "@SQ" line naming refName/refLen.
func NewWriter(w io.Writer, refName string, refLen uint32) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "@HD\tVN:1.6\tSO:unsorted\n"); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(bw, "@SQ\tSN:%s\tLN:%d\n", refName, refLen); err != nil {
		return nil, err
	}
	return &Writer{w: bw}, nil
}

// indelCigar builds the CIGAR for a read of length n mapped with the given
// single-base indel encoding (spec §3: 0 none, +n insertion after base n,
// -n deletion at base n).
func indelCigar(n int, indel int32) sam.Cigar {
	if indel == 0 {
		return sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}
	}
	if indel > 0 {
		offset := int(indel)
		return sam.Cigar{
			sam.NewCigarOp(sam.CigarMatch, offset),
			sam.NewCigarOp(sam.CigarInsertion, 1),
			sam.NewCigarOp(sam.CigarMatch, n-offset-1),
		}
	}
	offset := int(-indel)
	return sam.Cigar{
		sam.NewCigarOp(sam.CigarMatch, offset),
		sam.NewCigarOp(sam.CigarDeletion, 1),
		sam.NewCigarOp(sam.CigarMatch, n-offset),
	}
}

const (
	flagReverse  = 0x10
	flagUnmapped = 0x4
)

// WriteRecord writes one mapped read. qual holds offset-corrected Phred
// scores; it is re-encoded to SAM's +33 ASCII convention on output.
func (w *Writer) WriteRecord(name string, pos uint32, reversed bool, seq, qual []byte, indel int32) error {
	flag := 0
	if reversed {
		flag |= flagReverse
	}
	cigar := indelCigar(len(seq), indel)

	qualAscii := make([]byte, len(qual))
	for i, q := range qual {
		qualAscii[i] = q + 33
	}

	_, err := fmt.Fprintf(w.w, "%s\t%d\t%s\t%d\t%d\t%s\t*\t0\t0\t%s\t%s\n",
		name, flag, "ref", pos, 255, cigar.String(), seq, qualAscii)
	return err
}

// WriteUnmapped writes a minimal unmapped record, used for reads that
// never found a mapping but are still reported (e.g. for debugging SAM
// completeness).
func (w *Writer) WriteUnmapped(name string, seq, qual []byte) error {
	qualAscii := make([]byte, len(qual))
	for i, q := range qual {
		qualAscii[i] = q + 33
	}
	_, err := fmt.Fprintf(w.w, "%s\t%d\t*\t0\t0\t*\t*\t0\t0\t%s\t%s\n", name, flagUnmapped, seq, qualAscii)
	return err
}

// Flush flushes buffered output.
func (w *Writer) Flush() error { return w.w.Flush() }
