// Package annotations loads the gene-annotation overlay (spec §6): a
// comma/quote-delimited CSV with fields tag, _, startPos, stopPos, _, name,
// sorted by startPos and searched by a startPos-ordered scan. Parsing style
// follows genomevedic's annotations.GTFParser (scanner loop, comment/blank
// skip, one error per malformed line); the lookup index is a flat sorted
// slice rather than the teacher's positional bucket map, since annotation
// counts here are small enough that the original program's own linear
// "walk until startPos exceeds" scan is the simpler and more faithful fit.
package annotations

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"antonie/internal/gverrors"
)

// Feature is one annotated region of the reference genome.
type Feature struct {
	Tag       string
	StartPos  uint32
	StopPos   uint32
	Name      string
}

// Set is a collection of Features sorted by StartPos, supporting
// range-overlap lookup.
type Set struct {
	features []Feature
}

// Load parses annotation records from r. Lines beginning with '#' and blank
// lines are skipped; every other line must have at least 6 fields (indices
// 0, 2, 3, 5 are used, matching the original program's column layout).
func Load(r io.Reader) (*Set, error) {
	lines := make([][]string, 0, 1024)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	lineNum := 0
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, gverrors.Wrap(gverrors.BadFormat, fmt.Sprintf("annotations line %d", lineNum), err)
		}
		if len(record) == 0 {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(record[0]), "#") {
			continue
		}
		lines = append(lines, record)
	}

	s := &Set{features: make([]Feature, 0, len(lines))}
	for i, record := range lines {
		if len(record) < 6 {
			return nil, gverrors.New(gverrors.BadFormat, fmt.Sprintf("annotations line %d: expected at least 6 fields, got %d", i+1, len(record)))
		}
		start, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 32)
		if err != nil {
			return nil, gverrors.Wrap(gverrors.BadFormat, fmt.Sprintf("annotations line %d: invalid startPos", i+1), err)
		}
		stop, err := strconv.ParseUint(strings.TrimSpace(record[3]), 10, 32)
		if err != nil {
			return nil, gverrors.Wrap(gverrors.BadFormat, fmt.Sprintf("annotations line %d: invalid stopPos", i+1), err)
		}
		s.features = append(s.features, Feature{
			Tag:      strings.TrimSpace(record[0]),
			StartPos: uint32(start),
			StopPos:  uint32(stop),
			Name:     strings.TrimSpace(record[5]),
		})
	}

	sort.Slice(s.features, func(i, j int) bool { return s.features[i].StartPos < s.features[j].StartPos })
	return s, nil
}

// At returns every feature whose [StartPos, StopPos] range contains pos,
// walking the StartPos-sorted list until StartPos exceeds pos (the original
// program's own linear scan, since ranges may overlap and StopPos is not
// separately sorted).
func (s *Set) At(pos uint32) []Feature {
	var out []Feature
	for _, f := range s.features {
		if f.StartPos > pos {
			break
		}
		if pos <= f.StopPos {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of loaded features.
func (s *Set) Len() int { return len(s.features) }

// All returns every loaded feature, sorted by StartPos.
func (s *Set) All() []Feature { return s.features }
