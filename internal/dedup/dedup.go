// Package dedup implements the duplicate-read hash histogram: a thin,
// explicitly out-of-core-scope collaborator (spec §1) that the run
// coordinator still needs for the --duplimit filter and the dupcounts
// report series.
package dedup

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

const repeatCap = 20

// Counter hashes each read sequence it is fed and, on request, reports a
// histogram of "how many distinct sequences repeated N times", capping N at
// repeatCap the way the original program's DuplicateCounter does.
type Counter struct {
	hashes []uint32
	seen   map[uint32]uint32
}

// New returns an empty Counter sized for estimate reads.
func New(estimate int) *Counter {
	return &Counter{
		hashes: make([]uint32, 0, estimate),
		seen:   make(map[uint32]uint32),
	}
}

// Hash returns the fixed 32-bit hash of seq, used both by FeedString and by
// the run coordinator's --duplimit over-frequency filter so both share one
// hash function.
func Hash(seq []byte) uint32 {
	return uint32(xxhash.Sum64(seq))
}

// FeedString records one read's sequence.
func (c *Counter) FeedString(seq []byte) {
	c.hashes = append(c.hashes, Hash(seq))
}

// Seen increments and returns the running occurrence count for seq's hash,
// used directly by the --duplimit filter during the exact pass.
func (c *Counter) Seen(seq []byte) uint32 {
	h := Hash(seq)
	c.seen[h]++
	return c.seen[h]
}

// Counts returns a histogram mapping "repeat count" (capped at repeatCap) to
// "number of distinct sequences with that repeat count".
func (c *Counter) Counts() map[uint64]uint64 {
	ret := make(map[uint64]uint64)
	if len(c.hashes) == 0 {
		return ret
	}
	sorted := append([]uint32(nil), c.hashes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	run := uint64(1)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1] != sorted[i] {
			if run > repeatCap {
				run = repeatCap
			}
			ret[run]++
			run = 1
		} else {
			run++
		}
	}
	if run > repeatCap {
		run = repeatCap
	}
	ret[run]++
	return ret
}

// Clear releases the sample buffer, matching the original's "might save
// some memory" comment after the histogram has been computed.
func (c *Counter) Clear() {
	c.hashes = nil
}
