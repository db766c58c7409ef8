// Package match implements the two-phase read mapper: the exact matcher
// (C4, spec §4.4) that tries a single full-length k-mer probe in both
// orientations, and the fuzzy matcher (C5, spec §4.5) that anchors three
// short k-mers and scores candidates by Hamming-then-diff distance.
package match

import (
	"math/rand"
	"sort"

	"antonie/internal/indel"
	"antonie/internal/kmerindex"
)

var complement = [256]byte{}

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	complement['A'], complement['T'] = 'T', 'A'
	complement['C'], complement['G'] = 'G', 'C'
	complement['a'], complement['t'] = 't', 'a'
	complement['c'], complement['g'] = 'g', 'c'
}

// ReverseComplement returns the reverse complement of seq; non-ACGT bytes
// (such as 'N') pass through unchanged (spec §8 invariant 4: applying it
// twice is an involution).
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, c := range seq {
		out[n-1-i] = complement[c]
	}
	return out
}

// Reverse returns seq with its byte order reversed, used to keep a read's
// quality string aligned with a reverse-complemented sequence.
func Reverse(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, c := range seq {
		out[n-1-i] = c
	}
	return out
}

// Result is one committed mapping: the genomic start position and the
// (possibly reverse-complemented) read bytes that were actually aligned.
type Result struct {
	Pos      uint32
	Reversed bool
	Seq      []byte
	Qual     []byte
	Score    int
}

// Exact implements the C4 full-read single-probe matcher.
type Exact struct {
	idx *kmerindex.Index
	rng *rand.Rand
}

// NewExact builds an exact matcher over idx (which must be built with
// k == read length). seed makes the random tie-break among equally-good
// hits reproducible (spec §4.4, §9 "Random tie-breaking").
func NewExact(idx *kmerindex.Index, seed int64) *Exact {
	return &Exact{idx: idx, rng: rand.New(rand.NewSource(seed))}
}

// FindBoth probes seq forward, then its reverse complement, returning the
// first orientation with any hit. One hit is chosen uniformly at random
// among ties.
func (e *Exact) FindBoth(seq, qual []byte) (Result, bool) {
	if r, ok := e.tryOrient(seq, qual, false); ok {
		return r, true
	}
	rc := ReverseComplement(seq)
	rq := Reverse(qual)
	if r, ok := e.tryOrient(rc, rq, true); ok {
		return r, true
	}
	return Result{}, false
}

func (e *Exact) tryOrient(seq, qual []byte, reversed bool) (Result, bool) {
	hits, err := e.idx.Probe(seq)
	if err != nil || len(hits) == 0 {
		return Result{}, false
	}
	pos := hits[e.rng.Intn(len(hits))]
	return Result{Pos: pos, Reversed: reversed, Seq: seq, Qual: qual}, true
}

// Fuzzy implements the C5 triplet-anchor sliding-window matcher.
type Fuzzy struct {
	idx    *kmerindex.Index
	genome []byte // 1-based, sentinel at [0]
	qlimit int
	rng    *rand.Rand
}

// NewFuzzy builds a fuzzy matcher over idx (built with the short anchor
// length, spec default k=11) and genome (the 1-based reference backing
// array used to score candidates).
func NewFuzzy(idx *kmerindex.Index, genome []byte, qlimit int, seed int64) *Fuzzy {
	return &Fuzzy{idx: idx, genome: genome, qlimit: qlimit, rng: rand.New(rand.NewSource(seed))}
}

type taggedPos struct {
	pos uint32
	tag byte
}

type candidate struct {
	pos      int64
	reversed bool
	score    int
}

// Match runs the triplet-anchor search (spec §4.5) over both orientations
// of seq/qual and commits to the lowest-scoring candidate, breaking ties
// uniformly at random. Returns false if no candidate survives.
func (f *Fuzzy) Match(seq, qual []byte) (Result, bool) {
	k := int(f.idx.K())
	lRead := len(seq)
	interval := (lRead - 3*k) / 3
	if interval <= 0 {
		return Result{}, false
	}

	candidates := make(map[uint32]candidate)
	orientations := []struct {
		seq, qual []byte
		reversed  bool
	}{
		{seq, qual, false},
		{ReverseComplement(seq), Reverse(qual), true},
	}

outer:
	for _, o := range orientations {
		for attempts := 0; attempts < interval; attempts += 3 {
			lOff := attempts
			mOff := interval + attempts
			rOff := 2*interval + attempts
			if rOff+k > len(o.seq) {
				break
			}
			lHits, err1 := f.idx.Probe(o.seq[lOff : lOff+k])
			mHits, err2 := f.idx.Probe(o.seq[mOff : mOff+k])
			rHits, err3 := f.idx.Probe(o.seq[rOff : rOff+k])
			if err1 != nil || err2 != nil || err3 != nil {
				continue
			}
			if len(lHits) == 0 || len(mHits) == 0 || len(rHits) == 0 {
				continue
			}
			if len(lHits)+len(mHits)+len(rHits) < 3 {
				continue
			}

			merged := make([]taggedPos, 0, len(lHits)+len(mHits)+len(rHits))
			for _, p := range lHits {
				merged = append(merged, taggedPos{p, 'L'})
			}
			for _, p := range mHits {
				merged = append(merged, taggedPos{p, 'M'})
			}
			for _, p := range rHits {
				merged = append(merged, taggedPos{p, 'R'})
			}
			sort.Slice(merged, func(i, j int) bool { return merged[i].pos < merged[j].pos })

			limit := 1.2 * float64(interval)
			for i := 0; i+2 < len(merged); i++ {
				a, b, c := merged[i], merged[i+1], merged[i+2]
				if a.tag != 'L' || b.tag != 'M' || c.tag != 'R' {
					continue
				}
				gap1 := float64(b.pos) - float64(a.pos)
				gap2 := float64(c.pos) - float64(b.pos)
				if gap1 >= limit || gap2 >= limit {
					continue
				}
				start := int64(a.pos) - int64(attempts)
				if start < 0 {
					continue
				}
				u := uint32(start)
				if _, ok := candidates[u]; ok {
					continue
				}
				score := f.diffScore(u, o.seq, o.qual)
				candidates[u] = candidate{pos: start, reversed: o.reversed, score: score}
				if score == 0 {
					break outer
				}
			}
		}
	}

	if len(candidates) == 0 {
		return Result{}, false
	}

	positions := make([]uint32, 0, len(candidates))
	for pos := range candidates {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	best := candidates[positions[0]].score
	for _, pos := range positions {
		if c := candidates[pos]; c.score < best {
			best = c.score
		}
	}
	var bucket []candidate
	for _, pos := range positions {
		if c := candidates[pos]; c.score == best {
			bucket = append(bucket, c)
		}
	}
	chosen := bucket[f.rng.Intn(len(bucket))]

	var o struct {
		seq, qual []byte
	}
	if chosen.reversed {
		o.seq, o.qual = orientations[1].seq, orientations[1].qual
	} else {
		o.seq, o.qual = orientations[0].seq, orientations[0].qual
	}

	return Result{
		Pos:      uint32(chosen.pos),
		Reversed: chosen.reversed,
		Seq:      o.seq,
		Qual:     o.qual,
		Score:    chosen.score,
	}, true
}

// diffScore implements the §4.5.1 diff score: Hamming distance over
// ref[pos..pos+len(seq)] vs. seq, counting only quality>qlimit mismatches.
// At 5 or more such mismatches, C6 is consulted; a nonzero indel call
// collapses the score to 1.
func (f *Fuzzy) diffScore(pos uint32, seq, qual []byte) int {
	n := len(seq)
	if int(pos)+n > len(f.genome) {
		n = len(f.genome) - int(pos)
	}
	if n <= 0 {
		return len(seq)
	}
	ref := f.genome[pos : int(pos)+n]

	count := 0
	for i := 0; i < n; i++ {
		if seq[i] != ref[i] && int(qual[i]) > f.qlimit {
			count++
		}
	}
	if count >= 5 {
		if indel.Classify(ref, seq[:n]) != 0 {
			return 1
		}
	}
	return count
}
