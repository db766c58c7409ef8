// Package fastqio streams FASTQ records, transparently handling gzip
// framing (detected by a ".gz" suffix) and materializing individual records
// on demand by file offset for the coverage map's back-reference lookups
// (spec §9 "Back-reference cycle between coverage map and read list").
//
// The line-reading split mirrors genomevedic's loader.Decompressor
// (plain-file vs. gzip-wrapped *bufio.Reader over the same file handle);
// offsets and quality-string decoding follow original_source/zstuff.hh's
// LineReader/PlainLineReader/ZLineReader split.
package fastqio

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"antonie/internal/gverrors"
)

// Record is one parsed FASTQ entry. Qual holds already offset-corrected
// Phred scores (one int per base), not raw ASCII, since every downstream
// consumer compares against qlimit directly.
type Record struct {
	Name   string
	Seq    []byte
	Qual   []byte
	Offset int64 // uncompressed byte offset of the '@' header line
}

// lineSource abstracts the plain-file and gzip-wrapped cases behind the
// same {read line, report uncompressed position, seek} surface the original
// program's LineReader variants expose.
type lineSource interface {
	readLine() (string, error)
	pos() int64
	seekTo(offset int64) error
	close() error
}

type plainSource struct {
	file *os.File
	buf  *bufio.Reader
	off  int64
}

func newPlainSource(file *os.File) *plainSource {
	return &plainSource{file: file, buf: bufio.NewReaderSize(file, 64*1024)}
}

func (p *plainSource) readLine() (string, error) {
	line, err := p.buf.ReadString('\n')
	p.off += int64(len(line))
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *plainSource) pos() int64 { return p.off }

func (p *plainSource) seekTo(offset int64) error {
	n, err := p.file.Seek(offset, io.SeekStart)
	if err != nil {
		return err
	}
	p.off = n
	p.buf.Reset(p.file)
	return nil
}

func (p *plainSource) close() error { return p.file.Close() }

// gzipSource decompresses forward-only. Seeking (including backward seeks)
// reopens the gzip stream from the start and discards leading bytes, a
// simplification of spec §9's periodic-checkpoint design: correct in all
// cases, just not O(1) amortized for repeated backward seeks over a large
// file.
type gzipSource struct {
	file *os.File
	gz   *gzip.Reader
	buf  *bufio.Reader
	off  int64
}

func newGzipSource(file *os.File) (*gzipSource, error) {
	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, gverrors.Wrap(gverrors.DecompressionError, "opening gzip stream", err)
	}
	return &gzipSource{file: file, gz: gz, buf: bufio.NewReaderSize(gz, 64*1024)}, nil
}

func (g *gzipSource) readLine() (string, error) {
	line, err := g.buf.ReadString('\n')
	g.off += int64(len(line))
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if err != io.EOF {
			return "", gverrors.Wrap(gverrors.DecompressionError, "reading gzip stream", err)
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (g *gzipSource) pos() int64 { return g.off }

func (g *gzipSource) seekTo(offset int64) error {
	if _, err := g.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := g.gz.Reset(g.file); err != nil {
		return gverrors.Wrap(gverrors.DecompressionError, "resetting gzip stream", err)
	}
	g.buf.Reset(g.gz)
	g.off = 0
	for g.off < offset {
		chunk := offset - g.off
		const bufSize = 64 * 1024
		if chunk > bufSize {
			chunk = bufSize
		}
		n, err := io.CopyN(io.Discard, g.buf, chunk)
		g.off += n
		if err != nil {
			return gverrors.Wrap(gverrors.DecompressionError, "seeking within gzip stream", err)
		}
	}
	return nil
}

func (g *gzipSource) close() error {
	g.gz.Close()
	return g.file.Close()
}

// Reader streams 4-line FASTQ records, applying a quality offset and
// optional begin/end base trimming (spec §6).
type Reader struct {
	src        lineSource
	qualityOff int
	beginSnip  int
	endSnip    int
}

// Open opens path (transparently gzip-decompressing if it ends in ".gz")
// for streaming FASTQ reads.
func Open(path string, qualityOffset, beginSnip, endSnip int) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, gverrors.Wrap(gverrors.IOError, "opening fastq file", err)
	}
	var src lineSource
	if strings.HasSuffix(path, ".gz") {
		src, err = newGzipSource(file)
		if err != nil {
			file.Close()
			return nil, err
		}
	} else {
		src = newPlainSource(file)
	}
	return &Reader{src: src, qualityOff: qualityOffset, beginSnip: beginSnip, endSnip: endSnip}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.src.close() }

// Next parses and returns the next 4-line record, or io.EOF when the
// stream is exhausted. A record whose 4 lines are not fully present
// (truncated mid-record) reports UnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	offset := r.src.pos()
	header, err := r.src.readLine()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, gverrors.Wrap(gverrors.IOError, "reading fastq header", err)
	}
	if !strings.HasPrefix(header, "@") {
		return Record{}, gverrors.New(gverrors.BadFormat, "fastq record does not begin with '@'")
	}

	seqLine, err := r.src.readLine()
	if err != nil {
		return Record{}, gverrors.Wrap(gverrors.UnexpectedEOF, "truncated fastq record: missing sequence line", err)
	}
	plusLine, err := r.src.readLine()
	if err != nil {
		return Record{}, gverrors.Wrap(gverrors.UnexpectedEOF, "truncated fastq record: missing '+' line", err)
	}
	if !strings.HasPrefix(plusLine, "+") {
		return Record{}, gverrors.New(gverrors.BadFormat, "fastq record missing '+' separator line")
	}
	qualLine, err := r.src.readLine()
	if err != nil {
		return Record{}, gverrors.Wrap(gverrors.UnexpectedEOF, "truncated fastq record: missing quality line", err)
	}
	if len(qualLine) != len(seqLine) {
		return Record{}, gverrors.New(gverrors.BadFormat, "fastq sequence/quality length mismatch")
	}

	name := header[1:]
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}

	seq := []byte(seqLine)
	qual := make([]byte, len(qualLine))
	for i := 0; i < len(qualLine); i++ {
		qual[i] = qualLine[i] - byte(r.qualityOff)
	}

	if r.beginSnip > 0 && r.beginSnip < len(seq) {
		seq = seq[r.beginSnip:]
		qual = qual[r.beginSnip:]
	}
	if r.endSnip > 0 && r.endSnip < len(seq) {
		seq = seq[:len(seq)-r.endSnip]
		qual = qual[:len(qual)-r.endSnip]
	}

	return Record{Name: name, Seq: seq, Qual: qual, Offset: offset}, nil
}

// ReadAt seeks to offset (the uncompressed byte position of a record's '@'
// header, as recorded in a coverage.BackRef) and parses the single record
// there, for on-demand back-reference materialization.
func (r *Reader) ReadAt(offset int64) (Record, error) {
	if err := r.src.seekTo(offset); err != nil {
		return Record{}, gverrors.Wrap(gverrors.IOError, "seeking fastq source", err)
	}
	return r.Next()
}
