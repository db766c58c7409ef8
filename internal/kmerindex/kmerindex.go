// Package kmerindex implements the sorted (hash, position) k-mer index over
// a reference genome (spec §3, §4.2). The hash function is xxhash (64-bit,
// truncated to 32 bits), the fixed non-cryptographic integer hash genomevedic
// already depends on (github.com/cespare/xxhash/v2) for checksumming its
// FASTQ streaming loader; the spec only requires that build and probe use
// the same function.
package kmerindex

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"antonie/internal/gverrors"
)

// Entry is one (hash, position) record in the sorted index.
type Entry struct {
	Hash uint32
	Pos  uint32
}

// Index is the sorted k-mer index for a single reference, built for a fixed
// key length K.
type Index struct {
	genome []byte // 1-based, sentinel at [0], as returned by refgenome.Genome.Bytes
	k      uint32
	table  []Entry

	// FillRatio is the ratio of distinct hashes to index size, reported by
	// Build as a quality signal (spec §4.2).
	FillRatio float64
}

// hashOf returns the fixed 32-bit hash of genome[pos:pos+k].
func hashOf(window []byte) uint32 {
	return uint32(xxhash.Sum64(window))
}

// Build constructs (or rebuilds) the index for the given genome with key
// length k. genome must be the 1-based backing array (index 0 is the
// sentinel); positions 0..len(genome)-1-k are indexed, and position 0's
// window starts with the sentinel so it never matches a real probe.
func Build(genome []byte, k uint32) *Index {
	idx := &Index{genome: genome, k: k}
	if k == 0 || uint32(len(genome)) <= k {
		return idx
	}
	n := uint32(len(genome)) - k
	idx.table = make([]Entry, 0, n)
	for pos := uint32(0); pos < n; pos++ {
		h := hashOf(genome[pos : pos+k])
		idx.table = append(idx.table, Entry{Hash: h, Pos: pos})
	}
	sort.Slice(idx.table, func(i, j int) bool { return idx.table[i].Hash < idx.table[j].Hash })

	var distinct uint64
	for i := range idx.table {
		if i == 0 || idx.table[i].Hash != idx.table[i-1].Hash {
			distinct++
		}
	}
	if distinct > 0 {
		idx.FillRatio = float64(distinct) / float64(len(idx.table))
	}
	return idx
}

// K returns the key length this index was built for.
func (idx *Index) K() uint32 { return idx.k }

// Len returns the number of entries in the index.
func (idx *Index) Len() int { return len(idx.table) }

// Probe returns every genomic position whose k-mer window both hashes to
// and byte-matches kmer. len(kmer) must equal idx.K().
func (idx *Index) Probe(kmer []byte) ([]uint32, error) {
	if uint32(len(kmer)) != idx.k {
		return nil, gverrors.New(gverrors.IndexMismatch, "probe length does not match index key length")
	}
	h := hashOf(kmer)
	lo := sort.Search(len(idx.table), func(i int) bool { return idx.table[i].Hash >= h })
	hi := sort.Search(len(idx.table), func(i int) bool { return idx.table[i].Hash > h })

	var out []uint32
	for _, e := range idx.table[lo:hi] {
		if windowEquals(idx.genome, e.Pos, kmer) {
			out = append(out, e.Pos)
		}
	}
	return out, nil
}

func windowEquals(genome []byte, pos uint32, kmer []byte) bool {
	if int(pos)+len(kmer) > len(genome) {
		return false
	}
	window := genome[pos : int(pos)+len(kmer)]
	for i := range kmer {
		if window[i] != kmer[i] {
			return false
		}
	}
	return true
}
